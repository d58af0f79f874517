package server

import (
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/godii/transgemma/backend/server/internal/database"
	"github.com/godii/transgemma/shared"

	"github.com/araddon/dateparse"
	"github.com/google/uuid"
	"github.com/rodaine/table"
)

const maxCodesPerMint = 1000

func (s *Server) withAdminAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if ok && subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) == 1 {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", `Bearer realm="transgemma-admin"`)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	})
}

func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	err := s.db.Ping()
	if err != nil {
		panic(fmt.Errorf("failed to ping DB: %w", err))
	}
	if s.isProductionEnvironment {
		_, err := s.db.CountBindings(r.Context(), "healthcheck")
		checkGormError(err)
	}
	w.Write([]byte("OK"))
}

// newLicenseCode returns a code in the form XXXX-XXXX-XXXX-XXXX, skipping the UUID's fixed
// version and variant nibbles.
func newLicenseCode() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("failed to generate license code: %w", err)
	}
	h := strings.ToUpper(hex.EncodeToString(id[:]))
	return strings.Join([]string{h[0:4], h[4:8], h[8:12], h[20:24]}, "-"), nil
}

func parseNotAfter(val string, now time.Time) (*time.Time, error) {
	if val == "" {
		return nil, nil
	}
	t, err := dateparse.ParseIn(val, now.Location())
	if err != nil {
		return nil, fmt.Errorf("failed to parse not_after=%#v: %w", val, err)
	}
	if !t.After(now) {
		return nil, fmt.Errorf("not_after=%#v is in the past", val)
	}
	return &t, nil
}

func (s *Server) mintHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	now := s.now()
	count := 1
	if c := getOptionalQueryParam(r, "count"); c != "" {
		var err error
		count, err = strconv.Atoi(c)
		if err != nil || count <= 0 || count > maxCodesPerMint {
			http.Error(w, fmt.Sprintf("count must be between 1 and %d", maxCodesPerMint), http.StatusBadRequest)
			return
		}
	}
	notAfter, err := parseNotAfter(getOptionalQueryParam(r, "not_after"), now)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	codes := make([]*database.LicenseCode, 0, count)
	for i := 0; i < count; i++ {
		code, err := newLicenseCode()
		if err != nil {
			panic(err)
		}
		codes = append(codes, &database.LicenseCode{
			Code:      shared.NormalizeCode(code),
			CreatedAt: now,
			NotAfter:  notAfter,
			Note:      getOptionalQueryParam(r, "note"),
		})
	}
	checkGormError(s.db.CreateLicenseCodes(r.Context(), codes...))
	if s.statsd != nil {
		s.statsd.Count("transgemma.mint", int64(count), []string{}, 1.0)
	}

	minted := make([]string, 0, len(codes))
	for _, c := range codes {
		minted = append(minted, c.Code)
	}
	writeJSON(w, minted)
}

func formatOptionalDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(shared.DateOnly)
}

func (s *Server) listCodesHandler(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.db.LicenseCodeSummaries(r.Context())
	if err != nil {
		panic(fmt.Errorf("db.LicenseCodeSummaries: %w", err))
	}

	tbl := table.New("Code", "Created", "Not After", "Activated", "Expires", "Devices", "Revoked", "Note")
	tbl.WithWriter(w)
	for _, summary := range summaries {
		expires := ""
		if summary.ActivatedAt != nil {
			expires = summary.ExpireAt().Format(shared.DateOnly)
		}
		tbl.AddRow(
			summary.Code,
			summary.CreatedAt.Format(shared.DateOnly),
			formatOptionalDate(summary.NotAfter),
			formatOptionalDate(summary.ActivatedAt),
			expires,
			fmt.Sprintf("%d/%d", summary.DeviceCount, s.maxDevices),
			summary.Revoked,
			summary.Note,
		)
	}
	tbl.Print()
}

func (s *Server) revokeHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	code := shared.NormalizeCode(getOptionalQueryParam(r, "code"))
	err := s.db.RevokeLicenseCode(r.Context(), code)
	if errors.Is(err, database.ErrUnknownCode) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	checkGormError(err)
	fmt.Printf("revokeHandler: revoked code=%s\n", code)
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusOK)
}
