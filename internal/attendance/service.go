package attendance

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"foodforge/internal/meal"
	"foodforge/internal/notify"
	"foodforge/internal/token"
)

// Reason classifies a rejected admission.
type Reason string

const (
	InvalidFormat Reason = "InvalidFormat"
	AlreadyMarked Reason = "AlreadyMarked"
	StorageError  Reason = "StorageError"
)

// Result is the outcome of one scan.
type Result struct {
	Success bool      `json:"success"`
	Reason  Reason    `json:"reason,omitempty"`
	Meal    meal.Meal `json:"meal,omitempty"`
	Record  *Record   `json:"record,omitempty"`
	Message string    `json:"message"`
}

const publishTimeout = 2 * time.Second

// Options wires the service's collaborators. Only the ledger is required.
type Options struct {
	// Location fixes the calendar day and meal window; defaults to UTC.
	Location *time.Location
	Notifier notify.Notifier
	Names    NameResolver
	Logger   *zap.Logger
	Metrics  *Metrics
}

// Service turns scanned tokens into ledger records. It keeps no state between
// calls: duplicate admissions are rejected by the ledger's uniqueness
// constraint, so concurrent or repeated scans are safe.
type Service struct {
	ledger   Ledger
	loc      *time.Location
	notifier notify.Notifier
	names    NameResolver
	logger   *zap.Logger
	metrics  *Metrics
}

// NewService creates a service backed by a ledger.
func NewService(ledger Ledger, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Service{
		ledger:   ledger,
		loc:      opts.Location,
		notifier: opts.Notifier,
		names:    opts.Names,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Ledger returns the underlying ledger for read paths.
func (s *Service) Ledger() Ledger { return s.ledger }

// Today returns the scan date that applies at now.
func (s *Service) Today(now time.Time) string {
	return DateOf(now.In(s.loc))
}

// CurrentMeal returns the meal being served at now.
func (s *Service) CurrentMeal(now time.Time) meal.Meal {
	return meal.At(now.In(s.loc))
}

// Admit decodes a scanned payload and records the admission for the meal
// being served at now. It never retries; re-presenting the same token is safe.
func (s *Service) Admit(ctx context.Context, rawPayload string, now time.Time) Result {
	start := time.Now()
	res := s.admit(ctx, rawPayload, now)
	s.metrics.observe(res, time.Since(start))
	return res
}

func (s *Service) admit(ctx context.Context, rawPayload string, now time.Time) Result {
	tok, err := token.Decode(rawPayload)
	if err != nil {
		s.logger.Debug("rejecting scan payload", zap.Error(err))
		return Result{Reason: InvalidFormat, Message: "Invalid QR code format"}
	}

	local := now.In(s.loc)
	scanDate := DateOf(local)
	m := meal.At(local)

	rec, err := s.ledger.Insert(ctx, tok.UserID, m, scanDate, now)
	if err != nil {
		var dup *DuplicateError
		if errors.As(err, &dup) {
			return Result{
				Reason:  AlreadyMarked,
				Meal:    dup.Meal,
				Message: "Already marked for " + string(dup.Meal) + "!",
			}
		}
		s.logger.Error("attendance insert failed",
			zap.String("user_id", tok.UserID),
			zap.String("meal", string(m)),
			zap.String("scan_date", scanDate),
			zap.Error(err))
		return Result{Reason: StorageError, Meal: m, Message: "Failed to record attendance"}
	}

	s.logger.Info("attendance marked",
		zap.String("user_id", rec.UserID),
		zap.String("meal", string(rec.Meal)),
		zap.String("scan_date", rec.ScanDate))
	s.publish(ctx, rec)

	return Result{
		Success: true,
		Meal:    rec.Meal,
		Record:  &rec,
		Message: rec.Meal.Title() + " attendance marked!",
	}
}

// publish announces the new row with the student's name joined in, so
// dashboards can render it without re-querying.
func (s *Service) publish(ctx context.Context, rec Record) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	entry := Entry{Record: rec}
	if s.names != nil {
		name, err := s.names.FullName(ctx, rec.UserID)
		if err != nil {
			s.logger.Warn("resolve name for change event", zap.String("user_id", rec.UserID), zap.Error(err))
		}
		entry.FullName = name
	}

	evt, err := notify.NewInsert(notify.TableScans, entry)
	if err == nil {
		err = s.notifier.Publish(ctx, evt)
	}
	if err != nil {
		s.logger.Warn("publish attendance event", zap.String("record_id", rec.ID), zap.Error(err))
	}
}
