package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/godii/transgemma/backend/server/internal/database"
	"github.com/godii/transgemma/shared"
)

// rejectionMessage maps an expected activation failure to the message shown to the user. Any
// other error is unexpected and returns false.
func (s *Server) rejectionMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, database.ErrUnknownCode):
		return "invalid license code", true
	case errors.Is(err, database.ErrCodeRevoked):
		return "this license code has been revoked", true
	case errors.Is(err, database.ErrCodeExpired):
		return "this license code has expired", true
	case errors.Is(err, database.ErrDeviceLimit):
		return fmt.Sprintf("this license code is already in use on %d devices (%d/%d)", s.maxDevices, s.maxDevices, s.maxDevices), true
	}
	return "", false
}

func (s *Server) countResult(endpoint, result string) {
	if s.statsd != nil {
		s.statsd.Incr("transgemma."+endpoint, []string{"result:" + result}, 1.0)
	}
}

func (s *Server) apiActivateHandler(w http.ResponseWriter, r *http.Request) {
	var req shared.ActivateRequest
	ok, err := decodeRequest(w, r, &req)
	if !ok {
		return
	}
	if err != nil {
		s.countResult("activate", "invalid_request")
		writeJSON(w, shared.ActivateResponse{Success: false, Message: "invalid license code"})
		return
	}
	code := shared.NormalizeCode(req.Code)

	ent, err := s.db.ActivateDevice(r.Context(), code, req.DeviceId, getRemoteAddr(r), s.now(), s.maxDevices)
	if msg, isRejection := s.rejectionMessage(err); isRejection {
		s.countResult("activate", "rejected")
		writeJSON(w, shared.ActivateResponse{Success: false, Message: msg})
		return
	}
	checkGormError(err)

	fmt.Printf("apiActivateHandler: code=%s device_id=%s newly_bound=%v devices=%d\n", code, req.DeviceId, ent.NewlyBound, ent.DeviceCount)
	s.countResult("activate", "success")
	writeJSON(w, shared.ActivateResponse{
		Success:     true,
		ExpireAt:    shared.ToEpochMillis(ent.ExpireAt),
		DeviceCount: ent.DeviceCount,
	})
}

func (s *Server) apiVerifyHandler(w http.ResponseWriter, r *http.Request) {
	var req shared.VerifyRequest
	ok, err := decodeRequest(w, r, &req)
	if !ok {
		return
	}
	if err != nil {
		s.countResult("verify", "invalid_request")
		writeJSON(w, shared.VerifyResponse{Valid: false})
		return
	}

	ent, err := s.db.VerifyDevice(r.Context(), shared.NormalizeCode(req.Code), req.DeviceId, s.now())
	if errors.Is(err, database.ErrDeviceNotBound) {
		s.countResult("verify", "not_bound")
		writeJSON(w, shared.VerifyResponse{Valid: false})
		return
	}
	if _, isRejection := s.rejectionMessage(err); isRejection {
		s.countResult("verify", "invalid")
		writeJSON(w, shared.VerifyResponse{Valid: false})
		return
	}
	checkGormError(err)

	s.countResult("verify", "valid")
	writeJSON(w, shared.VerifyResponse{
		Valid:       true,
		ExpireAt:    shared.ToEpochMillis(ent.ExpireAt),
		DeviceCount: ent.DeviceCount,
	})
}

func (s *Server) apiPingHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("OK"))
}
