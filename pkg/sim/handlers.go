package sim

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-gazepanel/pkg/protocol"
)

func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.backend.Snapshot())
}

func (s *Server) handleDwellTime(c *fiber.Ctx) error {
	var req protocol.DwellTimeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := s.backend.SetDwellTime(req.DwellTime); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	s.logger.Info("dwell time updated", "seconds", req.DwellTime)
	return c.JSON(fiber.Map{"status": "success", "dwell_time": req.DwellTime})
}

func (s *Server) handleClickMode(c *fiber.Ctx) error {
	var req protocol.ClickModeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
	}
	if err := s.backend.SetClickMode(req.ClickMode); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	s.logger.Info("click mode updated", "mode", req.ClickMode)
	return c.JSON(fiber.Map{"status": "success", "click_mode": req.ClickMode})
}

func (s *Server) handleRefresh(c *fiber.Ctx) error {
	n := s.backend.Refresh()
	s.publish(protocol.SnapshotEvent{Snapshot: s.backend.Snapshot()})
	return c.JSON(fiber.Map{"status": "refreshed", "count": n})
}

func (s *Server) handleControl(c *fiber.Ctx) error {
	req := protocol.ControlRequest{Action: protocol.ActionToggle}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
		}
	}
	id := c.Params("id")
	d, err := s.backend.Control(id, req.Action, req.Parameters)
	switch {
	case errors.Is(err, ErrUnknownDevice):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case err != nil:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	s.logger.Info("device controlled", "device", id, "action", req.Action, "is_on", d.CurrentState.IsOn)
	s.publish(protocol.SnapshotEvent{Snapshot: s.backend.Snapshot()})
	return c.JSON(fiber.Map{"status": "success", "device_id": id, "current_state": d.CurrentState})
}

func (s *Server) handleRespond(c *fiber.Ctx) error {
	req := protocol.RespondRequest{Answer: protocol.AnswerNo}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid body"})
		}
	}
	res, err := s.backend.Respond(req.Answer)
	if err != nil {
		// Reported in-band, like the edge server.
		return c.JSON(fiber.Map{"error": "No pending recommendation"})
	}
	s.publish(protocol.SnapshotEvent{Snapshot: s.backend.Snapshot()})
	return c.JSON(res)
}

func (s *Server) handleCalibrationStart(c *fiber.Ctx) error {
	s.backend.StartCalibration()
	s.logger.Info("calibration started")
	return c.JSON(fiber.Map{"status": "started"})
}

func (s *Server) handleCalibrationProgress(c *fiber.Ctx) error {
	return c.JSON(s.backend.Progress())
}

func (s *Server) handleCalibrationSample(c *fiber.Ctx) error {
	ready, err := s.backend.AddSample()
	if err != nil {
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"ready": ready})
}

func (s *Server) handleCalibrationNext(c *fiber.Ctx) error {
	complete, err := s.backend.NextTarget()
	if err != nil {
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	if complete {
		s.logger.Info("calibration complete")
		s.publish(protocol.SnapshotEvent{Snapshot: s.backend.Snapshot()})
	}
	return c.JSON(fiber.Map{"complete": complete})
}
