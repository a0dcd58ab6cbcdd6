package devserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	apiv1 "arcsync/shared/contracts/api/v1"
)

const maxBodyBytes = 64 << 10

func writeEnvelope(w http.ResponseWriter, status int, env apiv1.Envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func writeOK(w http.ResponseWriter, status int, data any) {
	env, err := apiv1.OK(data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, apiv1.CodeInternal, "encode failed")
		return
	}
	writeEnvelope(w, status, env)
}

func writeError(w http.ResponseWriter, status int, code, msg string, details ...apiv1.FieldError) {
	writeEnvelope(w, status, apiv1.Fail(code, msg, details...))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer func() { _ = r.Body.Close() }()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data after JSON object")
	}
	return nil
}
