package httpapi

import (
	"encoding/json"
	"mime"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	"github.com/poolpilot/alerts/internal/poolpilot/types"
)

const protobufContentType = "application/x-protobuf"

type protoMessage = proto.Message

// wantsProtobuf reports whether the client asked for a protobuf response
// via the Accept header.
func wantsProtobuf(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if mt == protobufContentType || mt == "application/protobuf" {
			return true
		}
	}
	return false
}

// writeProto marshals msg and writes it with the given HTTP status.
func writeProto(w http.ResponseWriter, status int, msg proto.Message) {
	data, err := proto.Marshal(msg)
	if err != nil {
		// Fall back to a plain-text error if marshalling fails.
		http.Error(w, "proto marshal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", protobufContentType)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// respond writes v as JSON, or as the protobuf built by toProto when the
// client negotiated protobuf.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, status int, v any, toProto func() (protoMessage, error)) {
	if wantsProtobuf(r) {
		msg, err := toProto()
		if err == nil {
			writeProto(w, status, msg)
			return
		}
		s.logger.Warn("protobuf conversion failed; answering with JSON", zap.Error(err))
	}
	writeJSON(w, status, v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	resp := types.ErrorResponse{Error: code, Message: message}
	s.respond(w, r, status, resp, func() (protoMessage, error) { return errorToStruct(resp) })
}
