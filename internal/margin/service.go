package margin

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Aidin1998/marginx_unified/internal/margin/crif"
	"github.com/Aidin1998/marginx_unified/internal/margin/model"
	"github.com/Aidin1998/marginx_unified/internal/margin/simm"
	"github.com/Aidin1998/marginx_unified/internal/trades"
	"github.com/Aidin1998/marginx_unified/pkg/metrics"
)

// Service defines the margin engine operations.
type Service interface {
	ParseCRIF(ctx context.Context, r io.Reader, meta crif.ParseMeta) (*crif.ParseResult, *model.Upload, error)
	GenerateFromPortfolio(ctx context.Context, portfolioID string, valuationDate time.Time) (*model.Upload, error)
	ExecuteCalculation(ctx context.Context, uploadRef, parameterSetRef uuid.UUID) (*model.Calculation, error)
	GetCalculation(ctx context.Context, calculationID string) (*model.Calculation, error)
	ListCalculations(ctx context.Context, limit int) ([]model.Calculation, error)
	GetUpload(ctx context.Context, id uuid.UUID) (*model.Upload, error)
	GetUploadByUploadID(ctx context.Context, uploadID string) (*model.Upload, error)
	ListUploads(ctx context.Context, limit int) ([]model.Upload, error)
	Params() ParameterStore
}

// service implements Service.
type service struct {
	logger    *zap.Logger
	store     *Store
	params    ParameterStore
	parser    *crif.Parser
	generator *crif.Generator
	events    EventPublisher
}

// NewService creates the margin service.
func NewService(logger *zap.Logger, db *gorm.DB, params ParameterStore, tradeStore trades.Store, events EventPublisher) (Service, error) {
	if events == nil {
		events = NopPublisher{}
	}
	return &service{
		logger:    logger,
		store:     NewStore(db),
		params:    params,
		parser:    crif.NewParser(logger, db),
		generator: crif.NewGenerator(logger, db, tradeStore),
		events:    events,
	}, nil
}

func (s *service) ParseCRIF(ctx context.Context, r io.Reader, meta crif.ParseMeta) (*crif.ParseResult, *model.Upload, error) {
	return s.parser.Parse(ctx, r, meta)
}

func (s *service) GenerateFromPortfolio(ctx context.Context, portfolioID string, valuationDate time.Time) (*model.Upload, error) {
	return s.generator.GenerateFromPortfolio(ctx, portfolioID, valuationDate)
}

// ExecuteCalculation runs the full margin pipeline for one upload against
// one parameter set. Every status transition is persisted immediately. The
// run terminates COMPLETED with its breakdown and audit trail committed
// atomically, or FAILED with the error message and no partial rows.
func (s *service) ExecuteCalculation(ctx context.Context, uploadRef, parameterSetRef uuid.UUID) (*model.Calculation, error) {
	ctx, span := otel.Tracer("marginx/margin").Start(ctx, "ExecuteCalculation")
	defer span.End()

	upload, err := s.store.GetUpload(ctx, uploadRef)
	if err != nil {
		return nil, err
	}
	params, err := s.params.GetByID(ctx, parameterSetRef)
	if err != nil {
		return nil, err
	}

	calc := &model.Calculation{
		ID:                uuid.New(),
		CalculationID:     fmt.Sprintf("SIMM-%d", time.Now().UnixMilli()),
		UploadRef:         upload.ID,
		ParameterSetRef:   params.ID,
		PortfolioID:       upload.PortfolioID,
		CalculationDate:   upload.ValuationDate,
		ReportingCurrency: "USD",
		Status:            model.CalcPending,
		CreatedAt:         time.Now(),
	}
	span.SetAttributes(attribute.String("calculation_id", calc.CalculationID))
	if err := s.store.SaveCalculation(ctx, calc); err != nil {
		return nil, err
	}

	s.logger.Info("executing margin calculation",
		zap.String("calculation_id", calc.CalculationID),
		zap.String("upload_id", upload.UploadID),
		zap.String("parameter_set", params.VersionName))

	start := time.Now()
	calc.Status = model.CalcProcessing
	calc.UpdatedAt = time.Now()
	if err := s.store.SaveCalculation(ctx, calc); err != nil {
		return nil, err
	}

	recorder := simm.NewAuditRecorder()
	result, runErr := s.runAggregation(ctx, upload, params, recorder)
	elapsed := time.Since(start)

	if runErr != nil {
		calc.Status = model.CalcFailed
		calc.ErrorMessage = runErr.Error()
		calc.CalculationTimeMs = elapsed.Milliseconds()
		calc.UpdatedAt = time.Now()
		if err := s.store.SaveCalculation(ctx, calc); err != nil {
			s.logger.Error("failed to persist FAILED calculation",
				zap.String("calculation_id", calc.CalculationID), zap.Error(err))
		}
		metrics.CalculationsProcessed.WithLabelValues(string(model.CalcFailed)).Inc()
		s.publishTerminal(ctx, calc)

		s.logger.Error("margin calculation failed",
			zap.String("calculation_id", calc.CalculationID), zap.Error(runErr))
		return calc, fmt.Errorf("margin calculation failed: %w", runErr)
	}

	calc.Status = model.CalcCompleted
	calc.TotalIM = result.TotalIM
	calc.TotalIMUSD = result.TotalIM // USD reporting currency
	calc.DiversificationBenefit = result.DiversificationBenefit
	calc.CalculationTimeMs = elapsed.Milliseconds()
	calc.UpdatedAt = time.Now()

	rows := make([]model.CalculationResult, len(result.Rows))
	copy(rows, result.Rows)
	now := time.Now()
	for i := range rows {
		rows[i].ID = uuid.New()
		rows[i].CalculationRef = calc.ID
		rows[i].CreatedAt = now
	}
	audit := recorder.Entries()
	for i := range audit {
		audit[i].ID = uuid.New()
		audit[i].CalculationRef = calc.ID
	}

	if err := s.store.CompleteCalculation(ctx, calc, rows, audit); err != nil {
		return nil, err
	}
	metrics.CalculationsProcessed.WithLabelValues(string(model.CalcCompleted)).Inc()
	metrics.CalculationLatency.Observe(elapsed.Seconds())
	s.publishTerminal(ctx, calc)

	s.logger.Info("margin calculation completed",
		zap.String("calculation_id", calc.CalculationID),
		zap.String("total_im", calc.TotalIM.String()),
		zap.Int64("elapsed_ms", calc.CalculationTimeMs))
	return calc, nil
}

// runAggregation executes the aggregation pipeline, converting panics into
// errors so the calculation always reaches a terminal state.
func (s *service) runAggregation(ctx context.Context, upload *model.Upload, params *model.ParameterSet, recorder *simm.AuditRecorder) (result *simm.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("aggregation panic: %v", r)
		}
	}()

	loadDone := recorder.Step("load_sensitivities", map[string]interface{}{
		"upload_id": upload.UploadID,
	})
	records, err := s.store.SensitivitiesByUpload(ctx, upload.ID)
	if err != nil {
		loadDone(map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	loadDone(map[string]interface{}{"records": len(records)})

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", simm.ErrNoSensitivities, upload.UploadID)
	}

	resolver := simm.NewWeightResolver(s.logger, params)
	aggregator := simm.NewAggregator(s.logger, resolver)
	return aggregator.Aggregate(records, recorder)
}

func (s *service) publishTerminal(ctx context.Context, calc *model.Calculation) {
	event := CalculationEvent{
		CalculationID: calc.CalculationID,
		PortfolioID:   calc.PortfolioID,
		Status:        calc.Status,
		ErrorMessage:  calc.ErrorMessage,
		OccurredAt:    time.Now(),
	}
	if calc.Status == model.CalcCompleted {
		event.TotalIM = calc.TotalIM.String()
	}
	s.events.PublishCalculation(ctx, event)
}

func (s *service) GetCalculation(ctx context.Context, calculationID string) (*model.Calculation, error) {
	return s.store.GetCalculation(ctx, calculationID)
}

func (s *service) ListCalculations(ctx context.Context, limit int) ([]model.Calculation, error) {
	return s.store.ListCalculations(ctx, limit)
}

func (s *service) GetUpload(ctx context.Context, id uuid.UUID) (*model.Upload, error) {
	return s.store.GetUpload(ctx, id)
}

func (s *service) GetUploadByUploadID(ctx context.Context, uploadID string) (*model.Upload, error) {
	return s.store.GetUploadByUploadID(ctx, uploadID)
}

func (s *service) ListUploads(ctx context.Context, limit int) ([]model.Upload, error) {
	return s.store.ListUploads(ctx, limit)
}

func (s *service) Params() ParameterStore {
	return s.params
}
