package httpgateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/cuemby/jbapi/pkg/specstore"
	"github.com/cuemby/jbapi/pkg/types"
)

// Management response codes: 0 = ok, 1 = not-found-but-valid, -1 = error.
const (
	codeOK       = 0
	codeNotFound = 1
	codeError    = -1
)

type managementResponse struct {
	Code int `json:"code"`
	Data any `json:"data"`
}

type apiSpecView struct {
	APIName     string   `json:"api_name"`
	Cmd         string   `json:"cmd"`
	ImageName   string   `json:"image_name"`
	EndpointIn  int      `json:"endpt_in"`
	EndpointOut int      `json:"endpt_out"`
	TimeoutSecs int      `json:"timeout_secs"`
	Methods     []string `json:"methods"`
	Publisher   string   `json:"publisher"`
}

func toView(s *types.APISpec) apiSpecView {
	methods := make([]string, 0, len(s.Methods))
	for m := range s.Methods {
		methods = append(methods, m)
	}
	return apiSpecView{
		APIName:     s.APIName,
		Cmd:         s.Cmd,
		ImageName:   s.ImageName,
		EndpointIn:  s.EndpointIn,
		EndpointOut: s.EndpointOut,
		TimeoutSecs: s.TimeoutSecs,
		Methods:     methods,
		Publisher:   s.Publisher,
	}
}

// createParams is the body of a mode=create request's "params" field.
type createParams struct {
	APIName     string   `json:"api_name"`
	Cmd         string   `json:"cmd"`
	EndpointIn  int      `json:"endpt_in"`
	EndpointOut int      `json:"endpt_out"`
	Methods     []string `json:"methods"`
	Publisher   string   `json:"publisher"`
	ImageName   string   `json:"image_name"`
	TimeoutSecs int      `json:"timeout_secs"`
}

type infoParams struct {
	APIName   string `json:"api_name"`
	Publisher string `json:"publisher"`
}

// handleManagement implements the `/api_management?mode=info|create`
// surface. Both GET and POST are accepted; "params" is a JSON object
// carried either in the query string or the request body.
func (g *Gateway) handleManagement(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("mode")

	switch mode {
	case "info":
		g.handleManagementInfo(w, r)
	case "create":
		g.handleManagementCreate(w, r)
	default:
		writeManagement(w, http.StatusBadRequest, managementResponse{
			Code: codeError,
			Data: "unknown or missing mode",
		})
	}
}

func (g *Gateway) handleManagementInfo(w http.ResponseWriter, r *http.Request) {
	var params infoParams
	if err := decodeParams(r, &params); err != nil {
		writeManagement(w, http.StatusBadRequest, managementResponse{Code: codeError, Data: err.Error()})
		return
	}

	if params.APIName != "" {
		spec, err := g.specs.Get(params.APIName)
		if err == specstore.ErrNotFound {
			writeManagement(w, http.StatusOK, managementResponse{Code: codeNotFound, Data: []apiSpecView{}})
			return
		}
		if err != nil {
			writeManagement(w, http.StatusInternalServerError, managementResponse{Code: codeError, Data: err.Error()})
			return
		}
		writeManagement(w, http.StatusOK, managementResponse{Code: codeOK, Data: []apiSpecView{toView(spec)}})
		return
	}

	specs, err := g.specs.List(params.Publisher)
	if err != nil {
		writeManagement(w, http.StatusInternalServerError, managementResponse{Code: codeError, Data: err.Error()})
		return
	}

	views := make([]apiSpecView, 0, len(specs))
	for _, s := range specs {
		views = append(views, toView(s))
	}
	writeManagement(w, http.StatusOK, managementResponse{Code: codeOK, Data: views})
}

// handleManagementCreate implements `mode=create`. api_name, cmd, endpt_in,
// endpt_out, methods, and publisher are mandatory; image_name and
// timeout_secs are optional.
func (g *Gateway) handleManagementCreate(w http.ResponseWriter, r *http.Request) {
	var params createParams
	if err := decodeParams(r, &params); err != nil {
		writeManagement(w, http.StatusBadRequest, managementResponse{Code: codeError, Data: err.Error()})
		return
	}

	if params.APIName == "" || params.Cmd == "" || params.EndpointIn == 0 ||
		params.EndpointOut == 0 || len(params.Methods) == 0 || params.Publisher == "" {
		writeManagement(w, http.StatusBadRequest, managementResponse{
			Code: codeError,
			Data: "missing mandatory field: api_name, cmd, endpt_in, endpt_out, methods, publisher are all required",
		})
		return
	}

	_, err := g.specs.Upsert(specstore.Fields{
		APIName:     params.APIName,
		Cmd:         params.Cmd,
		ImageName:   params.ImageName,
		EndpointIn:  params.EndpointIn,
		EndpointOut: params.EndpointOut,
		TimeoutSecs: params.TimeoutSecs,
		Methods:     params.Methods,
		Publisher:   params.Publisher,
	})
	if err != nil {
		g.logger.Error().Err(err).Str("api_name", params.APIName).Msg("spec upsert failed")
		writeManagement(w, http.StatusBadRequest, managementResponse{Code: codeError, Data: err.Error()})
		return
	}

	writeManagement(w, http.StatusOK, managementResponse{Code: codeOK, Data: ""})
}

// decodeParams reads the "params" JSON object from the query string (GET)
// or request body (POST) into dst.
func decodeParams(r *http.Request, dst any) error {
	raw := r.URL.Query().Get("params")
	if raw != "" {
		return json.Unmarshal([]byte(raw), dst)
	}
	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
	}
	return nil
}

func writeManagement(w http.ResponseWriter, status int, resp managementResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
