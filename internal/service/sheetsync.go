package service

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"activation-portal/internal/model"

	"go.uber.org/zap"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// SheetSyncService mirrors the activation key table into a Google Sheet,
// one row per key keyed by id in column A. A nil service is disabled.
type SheetSyncService struct {
	service       *sheets.Service
	spreadsheetID string
	sheetName     string
	log           *zap.Logger
}

func NewSheetSyncService(ctx context.Context, enableSync bool, credentialPath, spreadsheetID, sheetName string, log *zap.Logger) (*SheetSyncService, error) {
	if !enableSync {
		return nil, nil
	}

	b, err := os.ReadFile(credentialPath)
	if err != nil {
		return nil, fmt.Errorf("read sheet credentials: %w", err)
	}

	creds, err := google.CredentialsFromJSON(ctx, b, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("无法加载凭证: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, err
	}

	return &SheetSyncService{
		service:       srv,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		log:           log.Named("sheetsync"),
	}, nil
}

// KeyRow is the spreadsheet representation of a key.
func KeyRow(key *model.ActivationKey) []interface{} {
	description, maxUsage := "", ""
	if key.Description != nil {
		description = *key.Description
	}
	if key.MaxUsage != nil {
		maxUsage = strconv.Itoa(*key.MaxUsage)
	}
	return []interface{}{
		key.ID,
		key.Value,
		description,
		strconv.FormatBool(key.Active),
		key.UsageCount,
		maxUsage,
		key.CreatedAt.Format(time.RFC3339),
		key.UpdatedAt.Format(time.RFC3339),
	}
}

// SyncKey updates the key's row, appending one when the key is new to the sheet.
func (s *SheetSyncService) SyncKey(ctx context.Context, key *model.ActivationKey) error {
	if s == nil {
		return nil
	}

	row, err := s.findRow(ctx, key.ID)
	if err != nil {
		return err
	}

	values := &sheets.ValueRange{Values: [][]interface{}{KeyRow(key)}}
	if row > 0 {
		_, err = s.service.Spreadsheets.Values.Update(
			s.spreadsheetID,
			fmt.Sprintf("%s!A%d:H%d", s.sheetName, row, row),
			values,
		).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	} else {
		_, err = s.service.Spreadsheets.Values.Append(
			s.spreadsheetID,
			s.sheetName+"!A2:H",
			values,
		).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	}
	if err != nil {
		return fmt.Errorf("同步到Google Sheet失败: %w", err)
	}

	s.log.Debug("synced key", zap.String("key_id", key.ID))
	return nil
}

// RemoveKey blanks the key's row.
func (s *SheetSyncService) RemoveKey(ctx context.Context, id string) error {
	if s == nil {
		return nil
	}

	row, err := s.findRow(ctx, id)
	if err != nil || row == 0 {
		return err
	}

	_, err = s.service.Spreadsheets.Values.Clear(
		s.spreadsheetID,
		fmt.Sprintf("%s!A%d:H%d", s.sheetName, row, row),
		&sheets.ClearValuesRequest{},
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clear sheet row: %w", err)
	}
	return nil
}

// findRow returns the 1-based sheet row holding id, or 0.
func (s *SheetSyncService) findRow(ctx context.Context, id string) (int, error) {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, s.sheetName+"!A2:A").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("查询Sheet数据失败: %w", err)
	}
	for i, row := range resp.Values {
		if len(row) > 0 && row[0] == id {
			return i + 2, nil
		}
	}
	return 0, nil
}
