package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/krystlih/swu-league-manager-sub000/internal/httputil"
)

type ContextKey string

const ActorIDKey ContextKey = "actorID"

// ActorHeader carries the Discord user id of whoever issued the command. The
// bot front-end sets it after resolving the interaction.
const ActorHeader = "X-Actor-ID"

// RequireActor rejects requests that do not say who is acting.
func RequireActor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actorID := strings.TrimSpace(r.Header.Get(ActorHeader))
		if actorID == "" {
			httputil.WriteJSON(w, http.StatusUnauthorized, map[string]string{"error": ActorHeader + " header is required"})
			return
		}

		ctx := context.WithValue(r.Context(), ActorIDKey, actorID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func GetActorIDFromContext(ctx context.Context) (string, bool) {
	val := ctx.Value(ActorIDKey)
	if val == nil {
		return "", false
	}

	id, ok := val.(string)
	return id, ok
}
