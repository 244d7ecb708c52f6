package handlers

import (
	"io"
	"net/http"
)

// maxUploadBytes bounds a single input image upload.
const maxUploadBytes = 64 << 20

// Upload receives one input file and forwards it to the upstream input
// store. The response always carries HTTP 200 with either a filename or an
// error payload; clients distinguish by field, matching the original
// frontend contract.
func (a *App) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		a.json(w, http.StatusOK, map[string]string{"error": "missing file field"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		a.json(w, http.StatusOK, map[string]string{"error": err.Error()})
		return
	}

	name, err := a.Runner.UploadImage(r.Context(), header.Filename, data)
	if err != nil {
		a.Logger.Warn().Err(err).Str("filename", header.Filename).Msg("gateway: upload failed")
		a.json(w, http.StatusOK, map[string]string{"error": err.Error()})
		return
	}
	a.json(w, http.StatusOK, map[string]string{"filename": name})
}
