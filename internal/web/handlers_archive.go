package web

import (
	"net/http"
	"time"

	"github.com/JonMunkholm/contacts/internal/core"
	"github.com/JonMunkholm/contacts/internal/logging"
	"github.com/JonMunkholm/contacts/internal/web/templates"
)

// ArchiveResponse reports the archiver state and, once complete, the
// archive's metadata.
type ArchiveResponse struct {
	core.ArchiveState
	Archive *ArchiveInfo `json:"archive,omitempty"`
}

// ArchiveInfo describes a completed archive.
type ArchiveInfo struct {
	RunID       string    `json:"run_id"`
	CreatedAt   time.Time `json:"created_at"`
	Count       int       `json:"count"`
	Bytes       int       `json:"bytes"`
	DownloadURL string    `json:"download_url"`
}

func (s *Server) handleArchiveStatus(w http.ResponseWriter, r *http.Request) {
	s.respondArchive(w, r, http.StatusOK)
}

func (s *Server) handleArchiveStart(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	if s.service.Archiver.Start() {
		status = http.StatusAccepted
		logging.FromContext(r.Context()).Info("archive requested")
	}
	s.respondArchive(w, r, status)
}

func (s *Server) handleArchiveReset(w http.ResponseWriter, r *http.Request) {
	s.service.Archiver.Reset()
	logging.FromContext(r.Context()).Info("archive reset")
	s.respondArchive(w, r, http.StatusOK)
}

func (s *Server) handleArchiveDownload(w http.ResponseWriter, r *http.Request) {
	ar := s.service.Archiver.Archive()
	if ar == nil {
		s.respondError(w, r, core.ErrArchiveNotReady, http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="`+core.ArchiveFilename+`"`)
	w.WriteHeader(http.StatusOK)
	if _, err := ar.WriteTo(w); err != nil {
		logging.FromContext(r.Context()).Warn("archive download interrupted", "run_id", ar.RunID, "error", err)
	}
}

// respondArchive renders the archive widget for htmx and JSON otherwise.
func (s *Server) respondArchive(w http.ResponseWriter, r *http.Request, status int) {
	st := s.service.Archiver.State()
	ar := s.service.Archiver.Archive()

	if isHTMX(r) {
		params := templates.ArchiveStatusParams{
			Status:  st.Status.String(),
			Percent: int(st.Progress * 100),
			Error:   st.Error,
		}
		if ar != nil {
			params.Count = ar.Count
		} else if st.Status == core.StatusComplete {
			// reset raced the read; show the idle widget
			params.Status = core.StatusWaiting.String()
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		templates.ArchiveStatus(params).Render(r.Context(), w)
		return
	}

	resp := ArchiveResponse{ArchiveState: st}
	if ar != nil {
		resp.Archive = &ArchiveInfo{
			RunID:       ar.RunID,
			CreatedAt:   ar.CreatedAt,
			Count:       ar.Count,
			Bytes:       ar.Size(),
			DownloadURL: "/contacts/archive/file",
		}
	}
	writeJSON(w, status, resp)
}
