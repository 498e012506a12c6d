package main

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/krystlih/swu-league-manager-sub000/internal/httputil"
	"github.com/krystlih/swu-league-manager-sub000/internal/league"
	"github.com/krystlih/swu-league-manager-sub000/internal/middleware"
	"github.com/krystlih/swu-league-manager-sub000/internal/service"
)

type createLeagueRequest struct {
	GuildID               string                 `json:"guildId"`
	Name                  string                 `json:"name"`
	Format                string                 `json:"format"`
	CompetitionType       league.CompetitionType `json:"competitionType"`
	TotalRounds           *int                   `json:"totalRounds"`
	RoundTimerMinutes     *int                   `json:"roundTimerMinutes"`
	TopCutSize            *int                   `json:"topCutSize"`
	AnnouncementChannelID string                 `json:"announcementChannelId"`
}

type playerRequest struct {
	PlayerID   string `json:"playerId"`
	PlayerName string `json:"playerName"`
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httputil.BadRequest(w, "Invalid "+name, err)
		return uuid.Nil, false
	}
	return id, true
}

func actor(r *http.Request) string {
	id, _ := middleware.GetActorIDFromContext(r.Context())
	return id
}

// playerOrActor lets a player act for themselves when the body names nobody.
func playerOrActor(r *http.Request, p *playerRequest) {
	if strings.TrimSpace(p.PlayerID) == "" {
		p.PlayerID = actor(r)
	}
}

func newRouter(svc *service.LeagueService, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	if len(allowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", middleware.ActorHeader},
			MaxAge:         300,
		}))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httputil.NotFound(w, "No route for "+r.Method+" "+r.URL.Path, nil)
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/leagues/{id}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		l, err := svc.GetLeague(r.Context(), id)
		if err != nil {
			httputil.Error(w, "Failed to get league", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, l)
	})

	r.Get("/leagues/{id}/standings", func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		entries, err := svc.GetStandings(r.Context(), id)
		if err != nil {
			httputil.Error(w, "Failed to get standings", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, entries)
	})

	r.Get("/leagues/{id}/rounds/{round}", func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		round, err := strconv.Atoi(chi.URLParam(r, "round"))
		if err != nil {
			httputil.BadRequest(w, "Invalid round", err)
			return
		}
		matches, err := svc.GetRoundMatches(r.Context(), id, round)
		if err != nil {
			httputil.Error(w, "Failed to get round", err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, matches)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireActor)

		r.Post("/leagues", func(w http.ResponseWriter, r *http.Request) {
			var req createLeagueRequest
			if err := decode(r, &req); err != nil {
				httputil.BadRequest(w, "Invalid league", err)
				return
			}
			l, err := svc.CreateLeague(r.Context(), service.CreateLeagueParams{
				GuildID:               req.GuildID,
				CreatorID:             actor(r),
				Name:                  req.Name,
				Format:                req.Format,
				CompetitionType:       req.CompetitionType,
				TotalRounds:           req.TotalRounds,
				RoundTimerMinutes:     req.RoundTimerMinutes,
				TopCutSize:            req.TopCutSize,
				AnnouncementChannelID: req.AnnouncementChannelID,
			})
			if err != nil {
				httputil.Error(w, "Failed to create league", err)
				return
			}
			httputil.WriteJSON(w, http.StatusCreated, l)
		})

		r.Delete("/leagues/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			if err := svc.DeleteLeague(r.Context(), actor(r), id); err != nil {
				httputil.Error(w, "Failed to delete league", err)
				return
			}
			httputil.WriteJSON(w, http.StatusNoContent, nil)
		})

		r.Post("/leagues/{id}/registrations", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			var req playerRequest
			if err := decode(r, &req); err != nil {
				httputil.BadRequest(w, "Invalid registration", err)
				return
			}
			playerOrActor(r, &req)
			reg, err := svc.RegisterPlayer(r.Context(), id, req.PlayerID, req.PlayerName)
			if err != nil {
				httputil.Error(w, "Failed to register player", err)
				return
			}
			httputil.WriteJSON(w, http.StatusCreated, reg)
		})

		r.Post("/leagues/{id}/drops", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			var req playerRequest
			if err := decode(r, &req); err != nil {
				httputil.BadRequest(w, "Invalid drop", err)
				return
			}
			playerOrActor(r, &req)
			reg, err := svc.DropPlayer(r.Context(), id, req.PlayerID)
			if err != nil {
				httputil.Error(w, "Failed to drop player", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, reg)
		})

		r.Post("/leagues/{id}/start", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			l, err := svc.StartLeague(r.Context(), id)
			if err != nil {
				httputil.Error(w, "Failed to start league", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, l)
		})

		r.Post("/leagues/{id}/rounds", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			res, err := svc.GenerateNextRound(r.Context(), id)
			if err != nil {
				httputil.Error(w, "Failed to generate round", err)
				return
			}
			httputil.WriteJSON(w, http.StatusCreated, res)
		})

		r.Post("/leagues/{id}/rounds/repair", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			res, err := svc.RepairCurrentRound(r.Context(), id)
			if err != nil {
				httputil.Error(w, "Failed to repair round", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, res)
		})

		r.Post("/leagues/{id}/end", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			l, err := svc.EndTournament(r.Context(), actor(r), id)
			if err != nil {
				httputil.Error(w, "Failed to end league", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, l)
		})

		r.Post("/leagues/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			l, err := svc.CancelLeague(r.Context(), actor(r), id)
			if err != nil {
				httputil.Error(w, "Failed to cancel league", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, l)
		})

		r.Post("/matches/{id}/result", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			var res service.Result
			if err := decode(r, &res); err != nil {
				httputil.BadRequest(w, "Invalid result", err)
				return
			}
			m, err := svc.ReportMatchResult(r.Context(), id, res)
			if err != nil {
				httputil.Error(w, "Failed to report result", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, m)
		})

		r.Put("/matches/{id}/result", func(w http.ResponseWriter, r *http.Request) {
			id, ok := uuidParam(w, r, "id")
			if !ok {
				return
			}
			var res service.Result
			if err := decode(r, &res); err != nil {
				httputil.BadRequest(w, "Invalid result", err)
				return
			}
			m, err := svc.ModifyMatchResult(r.Context(), actor(r), id, res)
			if err != nil {
				httputil.Error(w, "Failed to modify result", err)
				return
			}
			httputil.WriteJSON(w, http.StatusOK, m)
		})
	})

	return r
}
