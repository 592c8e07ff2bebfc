package webserver

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// loadAsset serves a file from the public directory, resolved from the
// request path. HTML assets pass through the template engine before being
// written out.
func (s *Server) loadAsset(w http.ResponseWriter, r *http.Request) {
	s.loadAssetByPath(w, r, r.URL.Path)
}

func (s *Server) loadAssetByPath(w http.ResponseWriter, r *http.Request, assetPath string) {
	// Clean against traversal before touching the filesystem.
	cleaned := path.Clean("/" + assetPath)
	full := filepath.Join(s.cfg.PublicDir(), filepath.FromSlash(cleaned))

	data, err := os.ReadFile(full)
	if err != nil {
		notFound(w, r)
		return
	}

	ext := strings.ToLower(filepath.Ext(full))
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)

	if ext == ".html" || ext == ".htm" {
		rendered := s.templateVariables().Inject(string(data))
		w.Write([]byte(rendered))
		return
	}

	w.Write(data)
}

// templateVariables builds the per-request variable set rendered into HTML
// assets. Values are read lazily, so only markers the asset actually uses
// touch the miner.
func (s *Server) templateVariables() *TemplateVariables {
	tv := NewTemplateVariables()

	tv.Set("VERSION", func() string {
		return s.version
	})
	tv.Set("BLOCKHEIGHT", func() string {
		return fmt.Sprintf("%d", s.miner.MiningInfo().Height)
	})
	tv.Set("BASETARGET", func() string {
		return fmt.Sprintf("%d", s.miner.MiningInfo().BaseTarget)
	})
	tv.Set("SCANPROGRESS", func() string {
		return fmt.Sprintf("%.1f", s.miner.ScanProgress()*100)
	})
	tv.Set("BESTDEADLINE", func() string {
		return fmt.Sprintf("%d", s.miner.BestDeadline())
	})
	tv.Set("PLOTDIRS", func() string {
		dirs, err := json.Marshal(s.miner.PlotDirs())
		if err != nil {
			return "[]"
		}
		return string(dirs)
	})

	return tv
}
