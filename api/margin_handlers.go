package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	apperrors "github.com/Aidin1998/marginx_unified/pkg/errors"

	"github.com/Aidin1998/marginx_unified/internal/margin/crif"
	"github.com/Aidin1998/marginx_unified/internal/margin/model"
	"github.com/Aidin1998/marginx_unified/internal/trades"
)

const dateLayout = "2006-01-02"

// uploadCRIF ingests a CRIF file as multipart form data and returns the
// parse summary alongside the stored upload.
func (s *Server) uploadCRIF(c *gin.Context) {
	portfolioID := c.PostForm("portfolio_id")
	if portfolioID == "" {
		s.writeError(c, apperrors.Invalid.Msg("portfolio_id is required"))
		return
	}

	valuationDate := time.Now().UTC().Truncate(24 * time.Hour)
	if raw := c.PostForm("valuation_date"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			s.writeError(c, apperrors.Invalid.Msg("invalid valuation_date: %s", raw))
			return
		}
		valuationDate = parsed
	}
	currency := c.PostForm("currency")
	if currency == "" {
		currency = "USD"
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		s.writeError(c, apperrors.Invalid.Msg("file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer file.Close()

	result, upload, err := s.margins.ParseCRIF(c.Request.Context(), file, crif.ParseMeta{
		Filename:      fileHeader.Filename,
		PortfolioID:   portfolioID,
		ValuationDate: valuationDate,
		Currency:      currency,
	})
	if err != nil {
		s.writeError(c, err)
		return
	}

	status := http.StatusCreated
	if upload.Status == model.UploadFailed {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, gin.H{
		"upload":        upload,
		"total_records": result.TotalRecords(),
		"valid_records": result.ValidRecords(),
		"error_records": result.ErrorRecords(),
		"success_rate":  result.SuccessRate(),
		"errors":        result.Errors,
	})
}

func (s *Server) listUploads(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	uploads, err := s.margins.ListUploads(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"uploads": uploads})
}

func (s *Server) getUpload(c *gin.Context) {
	upload, err := s.margins.GetUploadByUploadID(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"upload": upload})
}

type generateRequest struct {
	PortfolioID   string `json:"portfolio_id" validate:"required"`
	ValuationDate string `json:"valuation_date,omitempty"`
}

// generateSensitivities derives a synthetic sensitivity batch from the
// active trades of a portfolio.
func (s *Server) generateSensitivities(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, apperrors.Invalid.Msg("invalid request body"))
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		s.writeError(c, apperrors.Invalid.Msg("%s", err.Error()))
		return
	}

	valuationDate := time.Now().UTC().Truncate(24 * time.Hour)
	if req.ValuationDate != "" {
		parsed, err := time.Parse(dateLayout, req.ValuationDate)
		if err != nil {
			s.writeError(c, apperrors.Invalid.Msg("invalid valuation_date: %s", req.ValuationDate))
			return
		}
		valuationDate = parsed
	}

	upload, err := s.margins.GenerateFromPortfolio(c.Request.Context(), req.PortfolioID, valuationDate)
	if err != nil {
		s.writeError(c, apperrors.Unprocessable.Msg("%s", err.Error()))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"upload": upload})
}

type calculationRequest struct {
	UploadID            string `json:"upload_id" validate:"required"`
	ParameterSetVersion string `json:"parameter_set_version,omitempty"`
}

// createCalculation runs a margin calculation for an upload. The parameter
// set defaults to the one active on the upload's valuation date.
func (s *Server) createCalculation(c *gin.Context) {
	var req calculationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, apperrors.Invalid.Msg("invalid request body"))
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		s.writeError(c, apperrors.Invalid.Msg("%s", err.Error()))
		return
	}

	ctx := c.Request.Context()
	upload, err := s.margins.GetUploadByUploadID(ctx, req.UploadID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	var params *model.ParameterSet
	if req.ParameterSetVersion != "" {
		params, err = s.margins.Params().GetByVersion(ctx, req.ParameterSetVersion)
	} else {
		params, err = s.margins.Params().ActiveForDate(ctx, upload.ValuationDate)
	}
	if err != nil {
		s.writeError(c, err)
		return
	}

	calc, err := s.margins.ExecuteCalculation(ctx, upload.ID, params.ID)
	if err != nil {
		if calc != nil {
			// The run reached FAILED; report the terminal record.
			c.JSON(http.StatusUnprocessableEntity, gin.H{"calculation": calc})
			return
		}
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"calculation": calc})
}

func (s *Server) listCalculations(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	calcs, err := s.margins.ListCalculations(c.Request.Context(), limit)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calculations": calcs})
}

func (s *Server) getCalculation(c *gin.Context) {
	calc, err := s.margins.GetCalculation(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calculation": calc})
}

func (s *Server) listParameterSets(c *gin.Context) {
	sets, err := s.margins.Params().List(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"parameter_sets": sets})
}

type tradeRequest struct {
	NettingSetID    string `json:"netting_set_id" validate:"required"`
	ReferenceEntity string `json:"reference_entity" validate:"required"`
	NotionalAmount  string `json:"notional_amount" validate:"required"`
	Spread          string `json:"spread" validate:"required"`
	Currency        string `json:"currency" validate:"required,len=3"`
	EffectiveDate   string `json:"effective_date" validate:"required"`
	MaturityDate    string `json:"maturity_date" validate:"required"`
	Direction       string `json:"direction" validate:"required,oneof=BUY SELL"`
}

func (s *Server) createTrade(c *gin.Context) {
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.writeError(c, apperrors.Invalid.Msg("invalid request body"))
		return
	}
	if err := s.validator.Struct(&req); err != nil {
		s.writeError(c, apperrors.Invalid.Msg("%s", err.Error()))
		return
	}

	notional, err := decimal.NewFromString(req.NotionalAmount)
	if err != nil {
		s.writeError(c, apperrors.Invalid.Msg("invalid notional_amount: %s", req.NotionalAmount))
		return
	}
	spread, err := decimal.NewFromString(req.Spread)
	if err != nil {
		s.writeError(c, apperrors.Invalid.Msg("invalid spread: %s", req.Spread))
		return
	}
	effective, err := time.Parse(dateLayout, req.EffectiveDate)
	if err != nil {
		s.writeError(c, apperrors.Invalid.Msg("invalid effective_date: %s", req.EffectiveDate))
		return
	}
	maturity, err := time.Parse(dateLayout, req.MaturityDate)
	if err != nil {
		s.writeError(c, apperrors.Invalid.Msg("invalid maturity_date: %s", req.MaturityDate))
		return
	}

	trade := &trades.CDSTrade{
		NettingSetID:    req.NettingSetID,
		ReferenceEntity: req.ReferenceEntity,
		NotionalAmount:  notional,
		Spread:          spread,
		Currency:        req.Currency,
		EffectiveDate:   effective,
		MaturityDate:    maturity,
		Direction:       trades.ProtectionDirection(req.Direction),
		Status:          trades.StatusActive,
	}
	if err := s.trades.Create(c.Request.Context(), trade); err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"trade": trade})
}

func (s *Server) getTrade(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		s.writeError(c, apperrors.Invalid.Msg("invalid trade id: %s", c.Param("id")))
		return
	}
	trade, err := s.trades.GetByID(c.Request.Context(), id)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trade": trade})
}
