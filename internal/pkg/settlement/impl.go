package settlement

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/samber/do/v2"
	"github.com/vreid/duelist/internal/pkg/common"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

var (
	ErrInvalidFromAddress = errors.New("invalid eth-from address")
	ErrDrainTimeout       = errors.New("settlement queue not drained")
)

type SettlementService struct {
	Bridge  Bridge
	Ledger  Ledger
	Timeout time.Duration

	EffectSource <-chan ResolveDuel

	done chan struct{}
}

func NewBridge(rpcURL string, from string, gas uint64) (Bridge, error) {
	if rpcURL == "" {
		log.Warn().Msg("no eth-rpc-url configured, settlements are logged only")

		return DryRunBridge{}, nil
	}

	if !ethcommon.IsHexAddress(from) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFromAddress, from)
	}

	return NewEthBridge(rpcURL, ethcommon.HexToAddress(from), gas), nil
}

func NewSettlementService(i do.Injector) (*SettlementService, error) {
	databaseService := do.MustInvoke[*common.DatabaseService](i)
	effectSource := do.MustInvokeNamed[<-chan ResolveDuel](i, "settlement-source")

	rpcURL := do.MustInvokeNamed[string](i, "eth-rpc-url")
	from := do.MustInvokeNamed[string](i, "eth-from")
	gas := do.MustInvokeNamed[int](i, "settlement-gas")
	timeout := do.MustInvokeNamed[time.Duration](i, "settlement-timeout")

	//nolint:gosec // flag value is validated non-negative by the cli
	bridge, err := NewBridge(rpcURL, from, uint64(max(gas, 0)))
	if err != nil {
		return nil, err
	}

	result := &SettlementService{
		Bridge:  bridge,
		Ledger:  NewBoltLedger(databaseService),
		Timeout: timeout,

		EffectSource: effectSource,
	}

	echoService, err := do.Invoke[*common.EchoService](i)
	if err != nil {
		return nil, fmt.Errorf("failed to create echo service: %w", err)
	}

	echoService.Register(result.Routes)

	return result, nil
}

func (s *SettlementService) Routes(e *echo.Echo) {
	apiGroup := e.Group("/api")

	settlementGroup := apiGroup.Group("/duel/settlements")

	settlementGroup.GET("", s.ListSettlements)
	settlementGroup.GET("/:id", s.GetSettlement)
}

func (s *SettlementService) Start() {
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)

		s.processEffects()
	}()
}

// Wait returns once the source has been closed and every effect taken from
// it has a terminal ledger record.
func (s *SettlementService) Wait(ctx context.Context) error {
	if s.done == nil {
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrDrainTimeout, ctx.Err())
	}
}

// Dispatch sends effect once. The record is written as pending before the
// call so a crash mid-dispatch leaves a trace instead of a silent retry.
func (s *SettlementService) Dispatch(ctx context.Context, effect ResolveDuel) Record {
	record := Record{
		Effect:       effect,
		Status:       StatusPending,
		TxHash:       "",
		Error:        "",
		DispatchedAt: time.Now().Unix(),
	}

	err := s.Ledger.Put(ctx, &record)
	if err != nil {
		log.Error().Err(err).Str("id", effect.ID).Msg("failed to record pending settlement")
	}

	callCtx := ctx

	if s.Timeout > 0 {
		var cancel context.CancelFunc

		callCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	txHash, err := s.Bridge.ResolveDuel(callCtx, &effect)
	if err != nil {
		record.Status = StatusFailed
		record.Error = err.Error()

		log.Error().Err(err).Str("id", effect.ID).Str("contract", effect.Contract.Hex()).Msg("settlement failed")
	} else {
		record.Status = StatusDispatched
		record.TxHash = txHash

		log.Info().Str("id", effect.ID).Str("tx_hash", txHash).Bool("negative", effect.Negative).Msg("settlement dispatched")
	}

	common.SettlementsTotal.WithLabelValues(string(record.Status)).Inc()

	err = s.Ledger.Put(ctx, &record)
	if err != nil {
		log.Error().Err(err).Str("id", effect.ID).Msg("failed to record settlement")
	}

	return record
}

func (s *SettlementService) processEffects() {
	for effect := range s.EffectSource {
		s.Dispatch(context.Background(), effect)
	}
}

func (s *SettlementService) GetSettlement(c echo.Context) error {
	record, err := s.Ledger.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "settlement not found")
	}

	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read settlement")
	}

	//nolint:wrapcheck
	return c.JSONPretty(http.StatusOK, record, "  ")
}

func (s *SettlementService) ListSettlements(c echo.Context) error {
	limit := defaultListLimit

	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}

		limit = min(parsed, maxListLimit)
	}

	records, err := s.Ledger.List(c.Request().Context(), limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list settlements")
	}

	//nolint:wrapcheck
	return c.JSONPretty(http.StatusOK, records, "  ")
}
