package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tafahom/backend/internal/billing"
	"github.com/tafahom/backend/internal/pipeline"
	"github.com/tafahom/backend/internal/translation"
)

// maxUploadBytes bounds voice uploads. WAV at 16kHz mono runs about
// 2MB per minute, so this allows several minutes of speech.
const maxUploadBytes = 32 << 20

type textToSignRequest struct {
	Text string `json:"text"`
}

type translationResponse struct {
	TranslationID int64    `json:"translation_id"`
	Text          string   `json:"text,omitempty"`
	Gloss         []string `json:"gloss,omitempty"`
	VideoURL      string   `json:"video_url,omitempty"`
}

// TextToSign handles POST /api/v1/translation/text-to-sign. One credit
// per request, consumed before the pipeline runs and never refunded.
func TextToSign(orch *pipeline.Orchestrator, wallet *billing.Service, records translation.Store, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := UserID(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var req textToSignRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
			writeError(w, http.StatusBadRequest, "text is required")
			return
		}

		if !chargeCredit(w, r, wallet, userID, "Text to sign translation", log) {
			return
		}

		rec := &translation.Record{
			UserID:         userID,
			Direction:      translation.DirectionToSign,
			InputType:      "text",
			OutputType:     "video",
			Status:         translation.StatusProcessing,
			InputText:      req.Text,
			SourceLanguage: "ar",
			ProcessingMode: translation.ModeBatch,
		}
		id, err := records.Create(r.Context(), rec)
		if err != nil {
			log.Error("translation record create failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		result, err := orch.TextToSign(r.Context(), req.Text)
		if err != nil {
			failRecord(r, records, id, err, log)
			writePipelineError(w, err)
			return
		}

		if err := records.Complete(r.Context(), id, "", result.VideoURL); err != nil {
			log.Error("translation record complete failed", "translation_id", id, "error", err)
		}

		writeJSON(w, http.StatusOK, translationResponse{
			TranslationID: id,
			Gloss:         result.Gloss,
			VideoURL:      result.VideoURL,
		})
	}
}

// VoiceToSign handles POST /api/v1/translation/voice-to-sign with a
// multipart WAV upload under the "file" field.
func VoiceToSign(orch *pipeline.Orchestrator, wallet *billing.Service, records translation.Store, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := UserID(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, http.StatusBadRequest, "multipart form with a file field is required")
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "file field is required")
			return
		}
		defer file.Close()

		if !chargeCredit(w, r, wallet, userID, "Voice to sign translation", log) {
			return
		}

		rec := &translation.Record{
			UserID:         userID,
			Direction:      translation.DirectionToSign,
			InputType:      "audio",
			OutputType:     "video",
			Status:         translation.StatusProcessing,
			SourceLanguage: "ar",
			ProcessingMode: translation.ModeBatch,
		}
		id, err := records.Create(r.Context(), rec)
		if err != nil {
			log.Error("translation record create failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		result, err := orch.VoiceToSign(r.Context(), file, header.Filename)
		if err != nil {
			failRecord(r, records, id, err, log)
			writePipelineError(w, err)
			return
		}

		if err := records.Complete(r.Context(), id, result.Text, result.VideoURL); err != nil {
			log.Error("translation record complete failed", "translation_id", id, "error", err)
		}

		writeJSON(w, http.StatusOK, translationResponse{
			TranslationID: id,
			Text:          result.Text,
			Gloss:         result.Gloss,
			VideoURL:      result.VideoURL,
		})
	}
}

// History handles GET /api/v1/translation/history.
func History(records translation.Store, log *slog.Logger) http.HandlerFunc {
	type item struct {
		ID             int64  `json:"id"`
		Direction      string `json:"direction"`
		InputType      string `json:"input_type"`
		OutputType     string `json:"output_type"`
		Status         string `json:"status"`
		InputText      string `json:"input_text,omitempty"`
		OutputText     string `json:"output_text,omitempty"`
		OutputMediaURL string `json:"output_media_url,omitempty"`
		ProcessingMode string `json:"processing_mode"`
		CreatedAt      string `json:"created_at"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := UserID(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		recs, err := records.ListByUser(r.Context(), userID, 50)
		if err != nil {
			log.Error("history query failed", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		items := make([]item, 0, len(recs))
		for _, rec := range recs {
			items = append(items, item{
				ID:             rec.ID,
				Direction:      rec.Direction,
				InputType:      rec.InputType,
				OutputType:     rec.OutputType,
				Status:         rec.Status,
				InputText:      rec.InputText,
				OutputText:     rec.OutputText,
				OutputMediaURL: rec.OutputMediaURL,
				ProcessingMode: rec.ProcessingMode,
				CreatedAt:      rec.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"translations": items})
	}
}

// chargeCredit reserves one credit for the request. It writes the error
// response itself and reports whether the handler may proceed.
func chargeCredit(w http.ResponseWriter, r *http.Request, wallet *billing.Service, userID, reason string, log *slog.Logger) bool {
	err := wallet.Consume(r.Context(), userID, 1, reason)
	switch {
	case err == nil:
		return true
	case errors.Is(err, billing.ErrInsufficientCredits):
		writeError(w, http.StatusPaymentRequired, "not enough credits")
		return false
	default:
		log.Error("credit consume failed", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return false
	}
}

func failRecord(r *http.Request, records translation.Store, id int64, cause error, log *slog.Logger) {
	if err := records.Fail(r.Context(), id, cause.Error()); err != nil {
		log.Error("translation record fail update failed", "translation_id", id, "error", err)
	}
}

// writePipelineError maps pipeline failures onto HTTP statuses: inputs the
// caller can fix are 4xx, upstream model failures are 502.
func writePipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrNoSupportedSigns):
		writeError(w, http.StatusUnprocessableEntity, "no supported signs found in the text")
	case errors.Is(err, pipeline.ErrNotWAV):
		writeError(w, http.StatusBadRequest, "audio must be a WAV file")
	default:
		writeError(w, http.StatusBadGateway, "translation failed")
	}
}
