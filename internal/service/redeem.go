package service

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"activation-portal/internal/format"
	"activation-portal/internal/getcid"
	"activation-portal/internal/i18n"
	"activation-portal/internal/metrics"
	"activation-portal/internal/model"

	"go.uber.org/zap"
)

// Failure classifies why a redemption did not produce a confirmation id.
type Failure string

const (
	MalformedRequest        Failure = "malformed_request"
	KeyNotFoundOrInactive   Failure = "key_not_found_or_inactive"
	QuotaExceeded           Failure = "quota_exceeded"
	UpstreamInvalidInput    Failure = "upstream_invalid_input"
	UpstreamBlocked         Failure = "upstream_blocked"
	UpstreamOperatorFailure Failure = "upstream_operator_failure"
	UpstreamUnclassified    Failure = "upstream_unclassified"
)

// Ledger messages for gate failures before the upstream call.
const (
	msgInvalidKey    = "invalid or inactive key"
	msgQuotaExceeded = "quota exceeded"
)

type KeyRepository interface {
	FindActiveByValue(ctx context.Context, value string) (*model.ActivationKey, error)
	IncrementUsage(ctx context.Context, id string) (int, error)
}

type UsageRecorder interface {
	Append(ctx context.Context, entry *model.UsageLog)
}

type Activator interface {
	Activate(ctx context.Context, iid string) getcid.Outcome
}

type RedeemRequest struct {
	ActivationKey  string
	InstallationID string
	ClientIP       string
	UserAgent      string
}

type RedeemResult struct {
	Success        bool
	ConfirmationID string
	// Status is the HTTP status to answer with.
	Status  int
	Failure Failure
	Message i18n.MessageID
}

// Redeemer runs one redemption: validate the key, check its quota, call
// GetCID, record the attempt and consume a use on success. Every attempt
// that gets past input validation leaves exactly one ledger entry.
type Redeemer struct {
	keys     KeyRepository
	ledger   UsageRecorder
	upstream Activator
	log      *zap.Logger
	metrics  *metrics.Recorder
}

func NewRedeemer(keys KeyRepository, ledger UsageRecorder, upstream Activator, log *zap.Logger, rec *metrics.Recorder) *Redeemer {
	return &Redeemer{
		keys:     keys,
		ledger:   ledger,
		upstream: upstream,
		log:      log.Named("redeem"),
		metrics:  rec,
	}
}

func (r *Redeemer) Redeem(ctx context.Context, req RedeemRequest) RedeemResult {
	value := strings.TrimSpace(req.ActivationKey)
	iid := format.NormalizeInstallationID(req.InstallationID)
	if value == "" || iid == "" {
		r.metrics.Redemption(string(MalformedRequest))
		return fail(http.StatusBadRequest, MalformedRequest, i18n.MissingFields)
	}

	entry := &model.UsageLog{
		InstallationID: iid,
		ClientIP:       req.ClientIP,
	}
	if ua := strings.TrimSpace(req.UserAgent); ua != "" {
		entry.UserAgent = &ua
	}

	key, err := r.findKey(ctx, value)
	if err != nil {
		if !errors.Is(err, ErrKeyNotFound) {
			r.log.Error("key lookup failed", zap.Error(err))
		}
		return r.reject(ctx, entry, msgInvalidKey,
			fail(http.StatusUnauthorized, KeyNotFoundOrInactive, i18n.InvalidKey))
	}
	entry.KeyID = &key.ID

	if key.Exhausted() {
		return r.reject(ctx, entry, msgQuotaExceeded,
			fail(http.StatusTooManyRequests, QuotaExceeded, i18n.QuotaExceeded))
	}

	out := r.upstream.Activate(ctx, iid)
	r.metrics.Upstream(out.Kind.String(), out.Duration)
	if !out.Confirmed() {
		r.log.Warn("upstream activation failed",
			zap.String("key_id", key.ID),
			zap.String("iid", format.InstallationID(iid)),
			zap.Stringer("kind", out.Kind),
			zap.Int("status", out.Status),
			zap.String("rule", out.Rule),
			zap.Error(out.Err),
		)
		return r.reject(ctx, entry, out.Detail(), upstreamFailure(out))
	}

	// The conditional increment is the authoritative quota gate; it can
	// still refuse when a concurrent redemption took the last use. It runs
	// before the success entry is appended, so a dropped ledger write
	// leaves a consumed use with no matching record.
	count, err := r.keys.IncrementUsage(ctx, key.ID)
	switch {
	case errors.Is(err, ErrQuotaExceeded):
		r.log.Warn("quota consumed concurrently, discarding confirmation id", zap.String("key_id", key.ID))
		return r.reject(ctx, entry, msgQuotaExceeded,
			fail(http.StatusTooManyRequests, QuotaExceeded, i18n.QuotaExceeded))
	case err != nil:
		r.log.Error("failed to increment key usage", zap.String("key_id", key.ID), zap.Error(err))
	}

	cid := out.Code
	entry.Success = true
	entry.ConfirmationID = &cid
	r.ledger.Append(ctx, entry)

	r.metrics.Redemption("success")
	r.log.Info("confirmation id issued",
		zap.String("key_id", key.ID),
		zap.Int("usage_count", count),
		zap.String("client_ip", req.ClientIP),
	)

	return RedeemResult{
		Success:        true,
		ConfirmationID: cid,
		Status:         http.StatusOK,
		Message:        i18n.Redeemed,
	}
}

// findKey matches the key exactly as submitted. Only when nothing matches
// is the grouped upper-case form of a product key tried.
func (r *Redeemer) findKey(ctx context.Context, value string) (*model.ActivationKey, error) {
	key, err := r.keys.FindActiveByValue(ctx, value)
	if !errors.Is(err, ErrKeyNotFound) {
		return key, err
	}
	if canonical := format.CanonicalKey(value); canonical != value {
		return r.keys.FindActiveByValue(ctx, canonical)
	}
	return nil, err
}

func (r *Redeemer) reject(ctx context.Context, entry *model.UsageLog, detail string, res RedeemResult) RedeemResult {
	entry.Success = false
	entry.ErrorMessage = &detail
	r.ledger.Append(ctx, entry)
	r.metrics.Redemption(string(res.Failure))
	return res
}

func fail(status int, f Failure, msg i18n.MessageID) RedeemResult {
	return RedeemResult{Status: status, Failure: f, Message: msg}
}

// upstreamFailure maps a GetCID outcome to the caller-facing answer.
// Token and capacity problems are the operator's, so they surface as 503
// whatever status GetCID used.
func upstreamFailure(out getcid.Outcome) RedeemResult {
	switch out.Kind {
	case getcid.InvalidInstallationID:
		return fail(http.StatusBadRequest, UpstreamInvalidInput, i18n.WrongIID)
	case getcid.BlockedInstallationID:
		return fail(http.StatusBadRequest, UpstreamBlocked, i18n.BlockedIID)
	case getcid.UpstreamAuthFailure:
		return fail(http.StatusServiceUnavailable, UpstreamOperatorFailure, i18n.UpstreamAuth)
	case getcid.UpstreamQuotaExceeded:
		return fail(http.StatusServiceUnavailable, UpstreamOperatorFailure, i18n.UpstreamQuota)
	case getcid.UpstreamBusy:
		return fail(http.StatusServiceUnavailable, UpstreamOperatorFailure, i18n.UpstreamBusy)
	}
	if out.Err == nil && out.Status >= 200 && out.Status <= 299 {
		return fail(http.StatusBadRequest, UpstreamUnclassified, i18n.UpstreamBadContent)
	}
	return fail(http.StatusBadRequest, UpstreamUnclassified, i18n.UpstreamFailure)
}
