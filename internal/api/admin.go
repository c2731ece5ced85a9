package api

import (
	"net/http"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/sites"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/users"
)

type SitesResponse struct {
	Sites []SiteResponse `json:"sites"`
	Count int            `json:"count"`
}

func (h *Handler) listSites(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Sites.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]SiteResponse, len(list))
	for i, s := range list {
		out[i] = siteResponse(s)
	}
	writeJSON(w, http.StatusOK, SitesResponse{Sites: out, Count: len(out)})
}

// createSite takes the same snake_case body as a settings update; name and
// slug are required here.
func (h *Handler) createSite(w http.ResponseWriter, r *http.Request) {
	var req SiteUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	create := sites.CreateRequest{Fields: req.toDomain()}
	if req.Name != nil {
		create.Name = *req.Name
	}
	if req.Slug != nil {
		create.Slug = *req.Slug
	}

	site, err := h.svc.Sites.Create(r.Context(), create)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, siteResponse(site))
}

type UsersResponse struct {
	Users []UserResponse `json:"users"`
	Count int            `json:"count"`
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Users.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	out := make([]UserResponse, len(list))
	for i, u := range list {
		out[i] = userResponse(u)
	}
	writeJSON(w, http.StatusOK, UsersResponse{Users: out, Count: len(out)})
}

type UpsertUserRequest struct {
	FirebaseUID string `json:"firebase_uid"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
}

func (h *Handler) upsertUser(w http.ResponseWriter, r *http.Request) {
	var req UpsertUserRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := h.svc.Users.Upsert(r.Context(), users.UpsertRequest{
		FirebaseUID: req.FirebaseUID,
		Email:       req.Email,
		DisplayName: req.DisplayName,
		Role:        req.Role,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse(u))
}

type SetRoleRequest struct {
	Role string `json:"role"`
}

func (h *Handler) setUserRole(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userId", "user")
	if !ok {
		return
	}
	var req SetRoleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	u, err := h.svc.Users.SetRole(r.Context(), id, req.Role)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, userResponse(u))
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "userId", "user")
	if !ok {
		return
	}
	if err := h.svc.Users.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}
