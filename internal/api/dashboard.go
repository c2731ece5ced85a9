package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/analytics"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/domain"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/jobs"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/schedules"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/store"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/wordpress"
)

const defaultStatsHours = 24

func (h *Handler) getSite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "siteId", "site")
	if !ok {
		return
	}
	site, err := h.svc.Sites.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, siteResponse(site))
}

func (h *Handler) updateSite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "siteId", "site")
	if !ok {
		return
	}
	var req SiteUpdateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	site, err := h.svc.Sites.Update(r.Context(), id, req.toDomain())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, siteResponse(site))
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

func (h *Handler) deleteSite(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "siteId", "site")
	if !ok {
		return
	}
	if err := h.svc.Sites.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

func (h *Handler) listKeywords(w http.ResponseWriter, r *http.Request) {
	siteID, ok := pathID(w, r, "siteId", "site")
	if !ok {
		return
	}
	site, err := h.svc.Sites.Get(r.Context(), siteID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	kws, err := h.svc.Sites.Keywords(r.Context(), siteID, store.KeywordFilter{})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, KeywordsResponse{Keywords: keywordResponses(kws), SiteName: &site.Name})
}

type ReplaceKeywordsRequest struct {
	Keywords []KeywordRequest `json:"keywords"`
}

func (h *Handler) replaceKeywords(w http.ResponseWriter, r *http.Request) {
	siteID, ok := pathID(w, r, "siteId", "site")
	if !ok {
		return
	}
	var req ReplaceKeywordsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Keywords == nil {
		writeError(w, http.StatusBadRequest, "keywords must be an array")
		return
	}
	inputs := make([]domain.KeywordInput, len(req.Keywords))
	for i, k := range req.Keywords {
		inputs[i] = domain.KeywordInput{Keyword: k.Keyword, Priority: k.Priority, Active: k.IsActive}
	}
	if _, err := h.svc.Sites.ReplaceKeywords(r.Context(), siteID, inputs); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Success: true})
}

func (h *Handler) addKeyword(w http.ResponseWriter, r *http.Request) {
	siteID, ok := pathID(w, r, "siteId", "site")
	if !ok {
		return
	}
	var req KeywordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	k, err := h.svc.Sites.AddKeyword(r.Context(), siteID, req.Keyword, req.Priority)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, keywordResponse(k))
}

type ScheduleEnvelope struct {
	Schedule ScheduleResponse `json:"schedule"`
	SiteName string           `json:"siteName"`
}

func (h *Handler) getSchedule(w http.ResponseWriter, r *http.Request) {
	siteID, ok := pathID(w, r, "siteId", "site")
	if !ok {
		return
	}
	sc, site, err := h.svc.Schedules.Get(r.Context(), siteID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ScheduleEnvelope{Schedule: scheduleResponse(sc), SiteName: site.Name})
}

type SaveScheduleRequest struct {
	Schedule *ScheduleRequest `json:"schedule"`
}

func (h *Handler) saveSchedule(w http.ResponseWriter, r *http.Request) {
	siteID, ok := pathID(w, r, "siteId", "site")
	if !ok {
		return
	}
	var req SaveScheduleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Schedule == nil {
		writeError(w, http.StatusBadRequest, "schedule is required")
		return
	}
	s := req.Schedule
	sc, err := h.svc.Schedules.Save(r.Context(), siteID, schedules.Settings{
		Enabled:             s.IsEnabled,
		Frequency:           s.FrequencyType,
		TimeOfDay:           s.TimeOfDay,
		DaysOfWeek:          s.DaysOfWeek,
		CustomIntervalHours: s.CustomIntervalHours,
		ArticlesPerRun:      s.ArticlesPerRun,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, scheduleResponse(sc))
}

type SiteJobsResponse struct {
	Jobs     []JobResponse `json:"jobs"`
	SiteName string        `json:"siteName"`
}

func (h *Handler) siteJobs(w http.ResponseWriter, r *http.Request) {
	siteID, ok := pathID(w, r, "siteId", "site")
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	site, err := h.svc.Sites.Get(r.Context(), siteID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	list, err := h.svc.Jobs.List(r.Context(), store.JobFilter{
		SiteID: siteID,
		Status: domain.JobStatus(r.URL.Query().Get("status")),
		Limit:  limit,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SiteJobsResponse{Jobs: jobResponses(list), SiteName: site.Name})
}

func (h *Handler) siteJobStats(w http.ResponseWriter, r *http.Request) {
	siteID, ok := pathID(w, r, "siteId", "site")
	if !ok {
		return
	}
	if h.stats == nil {
		writeError(w, http.StatusNotImplemented, "job analytics are not configured")
		return
	}
	hours, err := queryInt(r, "hours")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if hours == 0 {
		hours = defaultStatsHours
	}
	if hours > analytics.MaxStatsHours {
		hours = analytics.MaxStatsHours
	}
	if _, err := h.svc.Sites.Get(r.Context(), siteID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	stats, err := h.stats.JobStats(r.Context(), siteID, h.now(), hours)
	if err != nil {
		writeServiceError(w, r, domain.Upstream(err, "read job stats"))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type UpdateSiteJobResponse struct {
	Success bool        `json:"success"`
	Job     JobResponse `json:"job"`
}

func (h *Handler) updateSiteJob(w http.ResponseWriter, r *http.Request) {
	siteID, ok := pathID(w, r, "siteId", "site")
	if !ok {
		return
	}
	jobID, ok := pathID(w, r, "jobId", "job")
	if !ok {
		return
	}
	var req UpdateJobRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	upd, err := req.toService()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	job, err := h.svc.Jobs.UpdateForSite(r.Context(), siteID, jobID, jobs.UpdateRequest{
		Status:       upd.Status,
		ErrorMessage: upd.ErrorMessage,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, UpdateSiteJobResponse{Success: true, Job: jobResponse(job)})
}

func (h *Handler) listPosts(w http.ResponseWriter, r *http.Request) {
	siteID, ok := pathID(w, r, "siteId", "site")
	if !ok {
		return
	}
	opts, err := listOptions(r)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	site, err := h.svc.Sites.Get(r.Context(), siteID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	creds, err := wordpress.CredentialsFor(site)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	page, err := h.posts.ListPosts(r.Context(), creds, opts)
	if err != nil {
		if !errors.Is(err, domain.ErrValidation) {
			err = domain.Upstream(err, "fetch WordPress posts")
		}
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func listOptions(r *http.Request) (wordpress.ListOptions, error) {
	q := r.URL.Query()
	page, err := queryInt(r, "page")
	if err != nil {
		return wordpress.ListOptions{}, err
	}
	perPage, err := queryInt(r, "per_page")
	if err != nil {
		return wordpress.ListOptions{}, err
	}
	categories, err := parseInt64List(q.Get("categories"))
	if err != nil {
		return wordpress.ListOptions{}, err
	}
	return wordpress.ListOptions{
		Page:       page,
		PerPage:    perPage,
		Status:     q.Get("status"),
		Search:     strings.TrimSpace(q.Get("search")),
		Categories: categories,
		OrderBy:    q.Get("orderby"),
		Order:      q.Get("order"),
	}, nil
}

type RegeneratePostsRequest struct {
	PostIDs []int64 `json:"postIds"`
}

type RegeneratePostsResponse struct {
	Success       bool            `json:"success"`
	Message       string          `json:"message"`
	PostIDs       []int64         `json:"postIds"`
	WebhookResult json.RawMessage `json:"webhookResult"`
}

func (h *Handler) regeneratePosts(w http.ResponseWriter, r *http.Request) {
	siteID, ok := pathID(w, r, "siteId", "site")
	if !ok {
		return
	}
	var req RegeneratePostsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Articles.RegeneratePosts(r.Context(), siteID, req.PostIDs)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	reply := res.Reply
	if len(reply) == 0 {
		reply = json.RawMessage("null")
	}
	writeJSON(w, http.StatusOK, RegeneratePostsResponse{
		Success:       true,
		Message:       "Regeneration started",
		PostIDs:       res.PostIDs,
		WebhookResult: reply,
	})
}

type ArticlesResponse struct {
	Articles []ArticleResponse `json:"articles"`
	Count    int               `json:"count"`
}

func (h *Handler) listArticles(w http.ResponseWriter, r *http.Request) {
	siteID, ok := pathID(w, r, "siteId", "site")
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	list, err := h.svc.Articles.List(r.Context(), siteID, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ArticlesResponse{Articles: articleResponses(list), Count: len(list)})
}

func (h *Handler) getArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "articleId", "article")
	if !ok {
		return
	}
	a, err := h.svc.Articles.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, articleResponse(a))
}

type ArticleStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) setArticleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "articleId", "article")
	if !ok {
		return
	}
	var req ArticleStatusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := h.svc.Articles.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, articleResponse(a))
}

type RegenerateArticleRequest struct {
	Feedback string `json:"feedback"`
}

func (h *Handler) regenerateArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "articleId", "article")
	if !ok {
		return
	}
	var req RegenerateArticleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := h.svc.Articles.Regenerate(r.Context(), id, req.Feedback)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) publishArticle(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "articleId", "article")
	if !ok {
		return
	}
	res, err := h.svc.Articles.Publish(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
