package api

import (
	"errors"
	"fmt"
	"net/http"

	"agentbacktest/internal/domain"
	"agentbacktest/internal/repository"

	"github.com/gin-gonic/gin"
)

// backtest runs synchronously. The body is any subset of config.File in its
// json form; omitted fields keep the server's configured values.
func (h ApiHandler) backtest(c *gin.Context) {
	file := h.BaseConfig.Clone()
	if err := c.ShouldBindJSON(&file); err != nil {
		returnErrorJsonCode(fmt.Errorf("failed to parse request: %w", err), c, http.StatusBadRequest)
		return
	}

	cfg, err := file.BacktestConfig()
	if err != nil {
		returnErrorJsonCode(err, c, http.StatusBadRequest)
		return
	}
	if err := cfg.Validate(); err != nil {
		returnErrorJsonCode(err, c, http.StatusBadRequest)
		return
	}

	ctx := c.Request.Context()
	engine, err := h.NewEngine(ctx, cfg)
	if err != nil {
		returnErrorJson(fmt.Errorf("failed to build engine: %w", err), c)
		return
	}

	result, err := engine.Run(ctx)
	if err != nil {
		_ = c.Error(err)
		returnErrorJson(err, c)
		return
	}

	c.JSON(http.StatusOK, result)
}

type GetRunResponse struct {
	Run          repository.RunRecord       `json:"run"`
	Transactions []domain.Transaction       `json:"transactions"`
	EquityCurve  []domain.PortfolioSnapshot `json:"equityCurve"`
}

func (h ApiHandler) getRun(c *gin.Context) {
	runID := c.Param("id")

	journal, err := h.OpenJournal()
	if err != nil {
		returnErrorJson(fmt.Errorf("failed to open journal: %w", err), c)
		return
	}
	defer journal.Close()

	ctx := c.Request.Context()
	run, err := journal.GetRun(ctx, runID)
	if errors.Is(err, repository.ErrRunNotFound) {
		returnErrorJsonCode(fmt.Errorf("run %s not found", runID), c, http.StatusNotFound)
		return
	}
	if err != nil {
		returnErrorJson(err, c)
		return
	}

	txs, err := journal.ListTransactions(ctx, runID)
	if err != nil {
		returnErrorJson(err, c)
		return
	}
	equity, err := journal.ListEquity(ctx, runID)
	if err != nil {
		returnErrorJson(err, c)
		return
	}

	c.JSON(http.StatusOK, GetRunResponse{
		Run:          *run,
		Transactions: txs,
		EquityCurve:  equity,
	})
}
