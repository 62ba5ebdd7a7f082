package duel

import (
	"errors"
	"math/big"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/vreid/duelist/internal/pkg/confidential"
	"github.com/vreid/duelist/internal/pkg/keymanager"
	"github.com/vreid/duelist/internal/pkg/scorer"
	"github.com/vreid/duelist/internal/pkg/settlement"
	"github.com/vreid/duelist/internal/pkg/signature"
)

func (s *DuelService) Routes(e *echo.Echo) {
	apiGroup := e.Group("/api")

	duelGroup := apiGroup.Group("/duel")

	duelGroup.GET("/public-key", s.GetPublicKey)
	duelGroup.POST("/commit", s.PostCommit)
	duelGroup.POST("/commit/decrypt", s.PostCommitDecrypt)
	duelGroup.POST("/commit/decrypt-verify", s.PostCommitDecryptVerify)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, keymanager.ErrUninitializedState):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "contract state is not initialized")
	case errors.Is(err, ErrUnauthorizedSigner),
		errors.Is(err, ErrUnknownWizard):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, ErrAffinityArity),
		errors.Is(err, ErrInvalidMove),
		errors.Is(err, ErrMissingField),
		errors.Is(err, scorer.ErrMoveSetLengthMismatch),
		errors.Is(err, scorer.ErrWeightTableOverflow),
		errors.Is(err, settlement.ErrOutOfRange),
		errors.Is(err, signature.ErrInvalidSignature):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, confidential.ErrDecryptionFailure):
		// the underlying cipher error is not echoed back
		return echo.NewHTTPError(http.StatusBadRequest, "failed to decrypt move set")
	default:
		log.Error().Err(err).Msg("duel commit failed")

		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func (s *DuelService) accept(c echo.Context, effect *settlement.ResolveDuel) error {
	if s.SettlementSink != nil {
		select {
		case s.SettlementSink <- *effect:
		case <-c.Request().Context().Done():
			log.Warn().Str("id", effect.ID).Msg("settlement queue full, duel not accepted")

			return echo.NewHTTPError(http.StatusServiceUnavailable, "settlement queue is full")
		}
	}

	//nolint:wrapcheck
	return c.JSONPretty(http.StatusAccepted, effect, "  ")
}

func (s *DuelService) GetPublicKey(c echo.Context) error {
	publicKey, err := s.PublicKey(c.Request().Context())
	if err != nil {
		return httpError(err)
	}

	//nolint:wrapcheck
	return c.JSONPretty(http.StatusOK, PublicKeyResponse{PublicKey: publicKey}, "  ")
}

func (s *DuelService) PostCommit(c echo.Context) error {
	var request CommitRequest

	err := c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	effect, err := s.CommitToDuel(c.Request().Context(),
		request.Moves1,
		request.Moves2,
		(*big.Int)(request.Wizard1),
		(*big.Int)(request.Wizard2),
		request.Affinities)
	if err != nil {
		return httpError(err)
	}

	return s.accept(c, effect)
}

func (s *DuelService) PostCommitDecrypt(c echo.Context) error {
	var request EncryptedCommitRequest

	err := c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	effect, err := s.CommitToDuelDecrypt(c.Request().Context(),
		request.EncMoves1,
		request.EncMoves2,
		(*big.Int)(request.Wizard1),
		(*big.Int)(request.Wizard2),
		request.Affinities)
	if err != nil {
		return httpError(err)
	}

	return s.accept(c, effect)
}

func (s *DuelService) PostCommitDecryptVerify(c echo.Context) error {
	var request SignedCommitRequest

	err := c.Bind(&request)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	effect, err := s.CommitToDuelDecryptAndVerify(c.Request().Context(),
		request.EncMoves1,
		request.EncMoves2,
		request.Signature1,
		request.Signature2,
		(*big.Int)(request.Wizard1),
		(*big.Int)(request.Wizard2),
		request.Affinities,
		(*big.Int)(request.Nonce))
	if err != nil {
		return httpError(err)
	}

	return s.accept(c, effect)
}
