package server

import (
	"fmt"
	"math"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oapi-codegen/runtime"
	"github.com/rs/zerolog/log"

	"devfest/internal/draw"
	"devfest/internal/redemption"
)

const maxWheelSize = 2000

type loadPoolRequest struct {
	// Source "remote" pulls completed redemptions from the event backend.
	Source  string       `json:"source"`
	Entries []draw.Entry `json:"entries"`
}

func (s *Server) handleRewards(c *gin.Context) {
	if s.deps.Rewards == nil {
		writeError(c, errRemoteDisabled)
		return
	}

	rewards, err := s.deps.Rewards.ListRewards(c.Request.Context(), CurrentSession(c).Token)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rewards": rewards})
}

func (s *Server) handleLoadPool(c *gin.Context) {
	rewardID := c.Param("reward")

	var req loadPoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}

	entries := req.Entries
	switch req.Source {
	case "", "body":
	case "remote":
		if s.deps.Rewards == nil {
			writeError(c, errRemoteDisabled)
			return
		}
		redemptions, err := s.deps.Rewards.ListRedemptions(c.Request.Context(), CurrentSession(c).Token, rewardID)
		if err != nil {
			writeError(c, err)
			return
		}
		entries = redemption.ToEntries(redemptions)
	default:
		writeError(c, fmt.Errorf("%w: unknown source %q", errBadRequest, req.Source))
		return
	}

	pool, err := s.deps.Engine.Load(c.Request.Context(), rewardID, entries)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, pool)
}

func (s *Server) handleGetPool(c *gin.Context) {
	pool, err := s.deps.Engine.Pool(c.Request.Context(), c.Param("reward"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pool":     pool,
		"spinning": s.deps.Engine.Spinning(pool.RewardID),
	})
}

// wheelParams are the query parameters of renderWheel.
type wheelParams struct {
	Rotation *float64
	Size     *int
}

func bindWheelParams(c *gin.Context) (wheelParams, error) {
	var params wheelParams
	query := c.Request.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "rotation", query, &params.Rotation); err != nil {
		return params, fmt.Errorf("%w: rotation: %w", errBadRequest, err)
	}
	if err := runtime.BindQueryParameter("form", true, false, "size", query, &params.Size); err != nil {
		return params, fmt.Errorf("%w: size: %w", errBadRequest, err)
	}
	return params, nil
}

// handleWheel renders the wheel of a loaded pool at ?rotation= degrees (default 0).
func (s *Server) handleWheel(c *gin.Context) {
	params, err := bindWheelParams(c)
	if err != nil {
		writeError(c, err)
		return
	}
	rotation := 0.0
	if params.Rotation != nil {
		if math.IsNaN(*params.Rotation) || math.IsInf(*params.Rotation, 0) {
			writeError(c, fmt.Errorf("%w: rotation must be finite", errBadRequest))
			return
		}
		rotation = *params.Rotation
	}
	size := s.config.Draw.WheelSize
	if params.Size != nil {
		if *params.Size < 64 || *params.Size > maxWheelSize {
			writeError(c, fmt.Errorf("%w: size must be between 64 and %d", errBadRequest, maxWheelSize))
			return
		}
		size = *params.Size
	}

	pool, err := s.deps.Engine.Pool(c.Request.Context(), c.Param("reward"))
	if err != nil {
		writeError(c, err)
		return
	}

	png, err := draw.EncodePNG(pool.Entries, rotation, size)
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", png)
}

// handleSpin streams "frame" events and one "winner" event. Failures before the first frame
// are plain JSON errors; later ones become an "error" event. Leaving early cancels the spin.
func (s *Server) handleSpin(c *gin.Context) {
	rewardID := c.Param("reward")
	streaming := false

	onFrame := func(f draw.Frame) {
		if !streaming {
			streaming = true
			setSSEHeaders(c)
			c.Status(http.StatusOK)
		}
		c.SSEvent("frame", f)
		c.Writer.Flush()
	}

	result, err := s.deps.Engine.Spin(c.Request.Context(), rewardID, onFrame)
	if err != nil {
		if !streaming {
			writeError(c, err)
			return
		}
		if c.Request.Context().Err() != nil {
			log.Info().Str("reward_id", rewardID).Msg("spin client disconnected")
			return
		}
		_, code := classify(err)
		c.SSEvent("error", gin.H{"error": code, "message": err.Error()})
		c.Writer.Flush()
		return
	}

	c.SSEvent("winner", result)
	c.Writer.Flush()
}

func (s *Server) handleWinners(c *gin.Context) {
	winners, err := s.deps.Engine.Winners(c.Request.Context(), c.Param("reward"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"winners": winners})
}
