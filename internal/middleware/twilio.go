package middleware

import (
	"net/http"
	"strings"

	"github.com/mudler/xlog"

	"github.com/zhouzirui/agentdesk/backend/internal/service/telephony"
	"github.com/zhouzirui/agentdesk/backend/pkg/utils"
)

// TwilioSignature rejects webhook calls whose X-Twilio-Signature does not match.
// The signed URL is rebuilt from publicBaseURL because the service usually sits behind a proxy.
func TwilioSignature(authToken, publicBaseURL string) func(http.Handler) http.Handler {
	base := strings.TrimRight(publicBaseURL, "/")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := r.ParseForm(); err != nil {
				utils.RespondError(w, http.StatusBadRequest, "invalid form body")
				return
			}

			fullURL := base + r.URL.RequestURI()
			signature := r.Header.Get("X-Twilio-Signature")
			if !telephony.ValidateSignature(authToken, fullURL, r.PostForm, signature) {
				xlog.Warn("rejected unsigned webhook", "component", "voice", "path", r.URL.Path)
				utils.RespondError(w, http.StatusForbidden, "invalid signature")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
