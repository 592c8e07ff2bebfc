package webserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/COhsrt/creepMiner/internal/mining"
)

// handleBurst dispatches the legacy pool-style query interface:
// /burst?requestType=getMiningInfo|submitNonce. Both operations skip the
// credential check so wallets and plotters can talk to the node directly.
func (s *Server) handleBurst(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Query().Get("requestType") {
	case "getMiningInfo":
		s.miningInfo(w, r)
	case "submitNonce":
		s.submitNonce(w, r)
	default:
		badRequest(w, "unknown requestType")
	}
}

func (s *Server) miningInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.miner.MiningInfo())
}

// submitNonce relays the submission to the configured pool and streams its
// verdict back unchanged. Without a pool the local miner answers with the
// calculated deadline.
func (s *Server) submitNonce(w http.ResponseWriter, r *http.Request) {
	if s.pool != nil {
		Forward(w, r, s.pool)
		return
	}

	query := r.URL.Query()
	accountID, err := strconv.ParseUint(query.Get("accountId"), 10, 64)
	if err != nil {
		badRequest(w, "invalid accountId")
		return
	}
	nonce, err := strconv.ParseUint(query.Get("nonce"), 10, 64)
	if err != nil {
		badRequest(w, "invalid nonce")
		return
	}

	deadline, err := s.miner.SubmitNonce(accountID, nonce)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result":   "success",
		"deadline": deadline,
	})
}

// changePlotDirs returns the handler for the plot directory endpoint. The
// add and remove routes share this one operation; only the bound remove flag
// differs.
func (s *Server) changePlotDirs(remove bool) Lambda {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.CheckCredentials(r) {
			unauthorized(w)
			return
		}

		var body struct {
			Dir string `json:"dir"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			badRequest(w, "invalid request body")
			return
		}
		if body.Dir == "" {
			badRequest(w, "missing dir")
			return
		}

		var err error
		if remove {
			err = s.miner.RemovePlotDir(body.Dir)
		} else {
			err = s.miner.AddPlotDir(body.Dir)
		}
		if err != nil {
			badRequest(w, err.Error())
			return
		}

		writeJSON(w, http.StatusOK, map[string]interface{}{
			"result":   "success",
			"plotDirs": s.miner.PlotDirs(),
		})
	}
}

func (s *Server) changeSettings(w http.ResponseWriter, r *http.Request) {
	if !s.CheckCredentials(r) {
		unauthorized(w)
		return
	}

	var settings mining.Settings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	if err := s.miner.UpdateSettings(settings); err != nil {
		badRequest(w, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result":   "success",
		"settings": s.miner.Settings(),
	})
}

func (s *Server) rescanPlotfiles(w http.ResponseWriter, r *http.Request) {
	if !s.CheckCredentials(r) {
		unauthorized(w)
		return
	}

	count := s.miner.RescanPlotfiles()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"result":   "success",
		"plotDirs": count,
	})
}

// handleShutdown acknowledges the request, then stops the miner and the
// server off the request goroutine so the response still reaches the caller.
func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if !s.CheckCredentials(r) {
		unauthorized(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"result": "shutting down"})

	go func() {
		s.miner.Shutdown()
		s.Stop()
		s.requestShutdown()
	}()
}

func (s *Server) addWebsocket(w http.ResponseWriter, r *http.Request) {
	s.hub.HandleUpgrade(w, r)
}
