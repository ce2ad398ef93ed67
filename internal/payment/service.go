package payment

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/cmatc13/merchantpay/internal/events"
	"github.com/cmatc13/merchantpay/internal/store"
	"github.com/cmatc13/merchantpay/internal/trp"
	"github.com/cmatc13/merchantpay/pkg/config"
	"github.com/cmatc13/merchantpay/pkg/errors"
	"github.com/cmatc13/merchantpay/pkg/logging"
	"github.com/cmatc13/merchantpay/pkg/metrics"
)

// Stage is a step of the submission pipeline.
type Stage string

// Pipeline stages, in order.
const (
	StageValidating Stage = "validating"
	StageSigning    Stage = "signing"
	StageDecoding   Stage = "decoding"
	StageSubmitting Stage = "submitting"
	StageDone       Stage = "done"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"

	fallbackMessage = "Payment submission failed"
	sideEffectLimit = 5 * time.Second
)

// Signer produces the merchant witness for a transaction hash.
type Signer interface {
	Sign(txHashHex string) ([]trp.Witness, error)
}

// ReceiptStore records submission attempts and guards against resubmission.
// Save must keep a submitted receipt when a later attempt for the same hash
// fails.
type ReceiptStore interface {
	Reserve(ctx context.Context, txHash string) (bool, error)
	Release(ctx context.Context, txHash string) error
	Save(ctx context.Context, r store.Receipt) error
}

// Result is the uniform outcome of Submit. Kind and Stage are for the
// transport layer and are not serialized.
type Result struct {
	Success bool        `json:"success"`
	TxHash  string      `json:"txHash,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    errors.Kind `json:"-"`
	Stage   Stage       `json:"-"`
}

// Deps are the collaborators of a Service. Receipts, Events and Metrics are
// optional.
type Deps struct {
	Signer    Signer
	Submitter trp.Submitter
	Receipts  ReceiptStore
	Events    events.Publisher
	Metrics   *metrics.Metrics
	Logger    *logging.Logger
}

// Service runs validating → signing → decoding → submitting for each
// request. It keeps no per-request state, so concurrent calls are independent.
type Service struct {
	cfg       config.PaymentConfig
	signer    Signer
	submitter trp.Submitter
	receipts  ReceiptStore
	events    events.Publisher
	metrics   *metrics.Metrics
	logger    *logging.Logger
}

// NewService creates a payment service.
func NewService(cfg config.PaymentConfig, deps Deps) (*Service, error) {
	if deps.Signer == nil {
		return nil, errors.Errorf(errors.KindConfig, "payment service requires a signer")
	}
	if deps.Submitter == nil {
		return nil, errors.Errorf(errors.KindConfig, "payment service requires a submitter")
	}
	if cfg.Dedupe && deps.Receipts == nil {
		return nil, errors.Errorf(errors.KindConfig, "payment.dedupe requires a receipt store")
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	publisher := deps.Events
	if publisher == nil {
		publisher = events.NopPublisher{}
	}

	return &Service{
		cfg:       cfg,
		signer:    deps.Signer,
		submitter: deps.Submitter,
		receipts:  deps.Receipts,
		events:    publisher,
		metrics:   deps.Metrics,
		logger:    logger.WithField("component", "payment"),
	}, nil
}

// attempt carries what one Submit call has learned so far.
type attempt struct {
	req          SubmitRequest
	stage        Stage
	validated    bool
	reserved     bool
	witnessCount int
}

// Submit co-signs and submits one transaction. It always returns a Result;
// errors and panics are folded into a failure result.
//
// Once submission starts it is not cancelled by ctx.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (result Result) {
	start := time.Now()
	a := &attempt{req: req, stage: StageValidating}

	defer func() {
		if r := recover(); r != nil {
			s.logger.WithContext(ctx).Error("Panic during payment submission",
				"stage", a.stage,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()))
			result = s.fail(ctx, a, errors.Errorf(errors.KindInternal, "panic: %v", r))
		}
		s.finish(ctx, a, result, time.Since(start))
	}()

	if err := s.validate(ctx, a); err != nil {
		return s.fail(ctx, a, err)
	}

	a.stage = StageSigning
	merchant, err := s.signer.Sign(req.TxHashHex)
	if err != nil {
		return s.fail(ctx, a, err)
	}

	a.stage = StageDecoding
	wallet, err := ExtractWalletWitnesses(req.WitnessSetCborHex)
	if err != nil {
		return s.fail(ctx, a, err)
	}
	if s.metrics != nil {
		s.metrics.RecordWalletWitnesses(len(wallet))
	}

	a.stage = StageSubmitting
	witnesses := make([]trp.Witness, 0, len(merchant)+len(wallet))
	witnesses = append(witnesses, merchant...)
	witnesses = append(witnesses, wallet...)
	a.witnessCount = len(witnesses)

	if err := s.submit(ctx, req, witnesses); err != nil {
		return s.fail(ctx, a, err)
	}

	a.stage = StageDone
	return Result{Success: true, TxHash: req.TxHashHex, Stage: StageDone}
}

func (s *Service) validate(ctx context.Context, a *attempt) error {
	if err := a.req.Validate(); err != nil {
		return err
	}
	if s.cfg.VerifyTxHash {
		if err := verifyTxHash(a.req.TxCborHex, a.req.TxHashHex); err != nil {
			return err
		}
	}
	a.validated = true

	if !s.cfg.Dedupe {
		return nil
	}
	ok, err := s.receipts.Reserve(ctx, a.req.TxHashHex)
	if err != nil {
		return err
	}
	if !ok {
		if s.metrics != nil {
			s.metrics.RecordDuplicate()
		}
		return errors.DuplicateSubmission(a.req.TxHashHex)
	}
	a.reserved = true
	return nil
}

func (s *Service) submit(ctx context.Context, req SubmitRequest, witnesses []trp.Witness) error {
	params := trp.SubmitParams{
		Tx:        trp.TxEnvelope{Content: req.TxCborHex, Encoding: trp.EncodingHex},
		Witnesses: witnesses,
	}

	started := time.Now()
	resp, err := s.submitter.Submit(context.WithoutCancel(ctx), params)
	if s.metrics != nil {
		elapsed := time.Since(started)
		s.metrics.RecordSubmission(elapsed)
		s.metrics.RecordDependencyLatency("payment", "trp", "submit", elapsed)
		if err != nil {
			s.metrics.RecordDependencyError("payment", "trp", "submit")
		}
	}
	if err != nil {
		if errors.KindOf(err) != errors.KindSubmission {
			err = errors.SubmissionFailed(errors.PaymentErrSubmitUnavailable, "", err)
		}
		return err
	}

	if resp != nil && resp.Hash != "" && resp.Hash != req.TxHashHex {
		s.logger.WithContext(ctx).Warn("Submission service returned a different hash",
			"tx_hash", req.TxHashHex, "returned_hash", resp.Hash)
	}
	return nil
}

// fail turns err into a failure result, choosing the caller-facing message
// by error kind.
func (s *Service) fail(ctx context.Context, a *attempt, err error) Result {
	kind := errors.KindOf(err)
	logger := s.logger.WithContext(ctx).WithError(err)

	var message string
	switch kind {
	case errors.KindValidation, errors.KindDecode, errors.KindSigning, errors.KindDuplicate:
		message = errors.PublicMessage(err, fallbackMessage)
		logger.Info("Payment request rejected", "stage", a.stage, "kind", kind, "code", errors.CodeOf(err))
	case errors.KindConfig:
		message = errors.PublicMessage(err, fallbackMessage)
		logger.WithFields(detail(err)).Error("Payment service misconfigured", "stage", a.stage, "code", errors.CodeOf(err))
	case errors.KindSubmission:
		message = errors.PublicMessage(err, fallbackMessage)
		logger.Warn("Payment submission failed", "stage", a.stage, "kind", kind, "code", errors.CodeOf(err))
	default:
		message = fallbackMessage
		logger.Error("Payment submission failed unexpectedly", "stage", a.stage, "kind", kind)
	}

	return Result{Success: false, Error: message, Kind: kind, Stage: a.stage}
}

func detail(err error) map[string]interface{} {
	var domainErr *errors.Error
	if errors.As(err, &domainErr) {
		return domainErr.Fields
	}
	return nil
}

// finish records metrics, the receipt and the outcome event. None of these
// can change the result.
func (s *Service) finish(ctx context.Context, a *attempt, result Result, elapsed time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic while recording payment outcome", "panic", fmt.Sprint(r))
		}
	}()

	outcome := outcomeSuccess
	if !result.Success {
		outcome = outcomeFailure
	}
	if s.metrics != nil {
		s.metrics.RecordPayment(outcome, elapsed)
		if !result.Success {
			s.metrics.RecordPaymentFailure(string(result.Stage), string(result.Kind))
		}
	}

	sideCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectLimit)
	defer cancel()
	logger := s.logger.WithContext(ctx)

	if a.reserved && !result.Success {
		if err := s.receipts.Release(sideCtx, a.req.TxHashHex); err != nil {
			logger.WithError(err).Warn("Failed to release transaction hash", "tx_hash", a.req.TxHashHex)
		}
	}

	if s.receipts != nil && a.validated && result.Kind != errors.KindDuplicate {
		receipt := store.Receipt{
			TxHash:       a.req.TxHashHex,
			Status:       store.ReceiptSubmitted,
			WitnessCount: a.witnessCount,
			SubmittedAt:  time.Now().UTC(),
		}
		if !result.Success {
			receipt.Status = store.ReceiptFailed
			receipt.Stage = string(result.Stage)
			receipt.Error = result.Error
		}
		if err := s.receipts.Save(sideCtx, receipt); err != nil {
			logger.WithError(err).Warn("Failed to save payment receipt", "tx_hash", a.req.TxHashHex)
		}
	}

	event := events.NewPaymentEvent(a.req.TxHashHex, events.OutcomeSubmitted)
	event.WitnessCount = a.witnessCount
	if !result.Success {
		event.Outcome = events.OutcomeFailed
		event.Stage = string(result.Stage)
		event.ErrorKind = string(result.Kind)
		event.Error = result.Error
	}
	if err := s.events.Publish(sideCtx, event); err != nil {
		logger.WithError(err).Warn("Failed to publish payment event", "tx_hash", a.req.TxHashHex)
	}

	logger.Info("Payment processed",
		"tx_hash", a.req.TxHashHex,
		"outcome", outcome,
		"stage", result.Stage,
		"witnesses", a.witnessCount,
		"duration_ms", elapsed.Milliseconds())
}
