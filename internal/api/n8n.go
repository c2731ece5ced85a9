package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/articles"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/domain"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/jobs"
	"github.com/bestsmilejp/ai-creative-compass-studio/internal/store"
)

type CreateJobRequest struct {
	SiteID         string `json:"siteId"`
	WPPostID       *int64 `json:"wpPostId"`
	IdempotencyKey string `json:"idempotencyKey"`
}

type CreateJobResponse struct {
	Status  string       `json:"status"`
	Job     *JobResponse `json:"job,omitempty"`
	Message string       `json:"message,omitempty"`
}

var outcomeMessages = map[jobs.Outcome]string{
	jobs.OutcomeAlreadyExists:     "Job with this idempotency key already exists",
	jobs.OutcomeAlreadyProcessing: "A job for this article is already in progress",
	jobs.OutcomeDuplicate:         "Job already exists (concurrent request)",
}

func (h *Handler) createJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	siteID, err := parseUUIDField(req.SiteID, "siteId")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	res, err := h.svc.Jobs.Create(r.Context(), jobs.CreateRequest{
		SiteID:         siteID,
		WPPostID:       req.WPPostID,
		IdempotencyKey: strings.TrimSpace(req.IdempotencyKey),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	resp := CreateJobResponse{Status: string(res.Outcome), Message: outcomeMessages[res.Outcome]}
	if res.Job != nil {
		j := jobResponse(*res.Job)
		resp.Job = &j
	}
	status := http.StatusOK
	if res.Outcome == jobs.OutcomeCreated {
		status = http.StatusCreated
	}
	writeJSON(w, status, resp)
}

type ListJobsResponse struct {
	Jobs  []JobResponse `json:"jobs"`
	Count int           `json:"count"`
}

func (h *Handler) listJobs(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	list, err := h.svc.Jobs.List(r.Context(), store.JobFilter{
		SiteID: queryUUID(r, "siteId"),
		Status: domain.JobStatus(r.URL.Query().Get("status")),
		Limit:  limit,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ListJobsResponse{Jobs: jobResponses(list), Count: len(list)})
}

type JobEnvelope struct {
	Status string      `json:"status,omitempty"`
	Job    JobResponse `json:"job"`
}

func (h *Handler) getJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "jobId", "job")
	if !ok {
		return
	}
	job, err := h.svc.Jobs.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, JobEnvelope{Job: jobResponse(job)})
}

type UpdateJobRequest struct {
	Status       string          `json:"status"`
	ResultData   json.RawMessage `json:"resultData"`
	ErrorMessage string          `json:"errorMessage"`
	WPPostID     *int64          `json:"wpPostId"`
}

func (r UpdateJobRequest) toService() (jobs.UpdateRequest, error) {
	status, err := domain.ParseJobStatus(r.Status)
	if err != nil {
		return jobs.UpdateRequest{}, err
	}
	var result json.RawMessage
	if trimmed := strings.TrimSpace(string(r.ResultData)); trimmed != "" && trimmed != "null" {
		result = r.ResultData
	}
	return jobs.UpdateRequest{
		Status:       status,
		ResultData:   result,
		ErrorMessage: r.ErrorMessage,
		WPPostID:     r.WPPostID,
	}, nil
}

func (h *Handler) updateJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "jobId", "job")
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
	job, err := h.svc.Jobs.Update(r.Context(), id, upd)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, JobEnvelope{Status: "updated", Job: jobResponse(job)})
}

type DeleteJobResponse struct {
	Status string `json:"status"`
	JobID  string `json:"jobId"`
}

func (h *Handler) deleteJob(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "jobId", "job")
	if !ok {
		return
	}
	if err := h.svc.Jobs.Delete(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteJobResponse{Status: "deleted", JobID: id.String()})
}

type DueSchedulesResponse struct {
	Schedules []DueScheduleResponse `json:"schedules"`
	Count     int                   `json:"count"`
	CheckedAt string                `json:"checkedAt"`
}

func (h *Handler) dueSchedules(w http.ResponseWriter, r *http.Request) {
	checkedAt := h.now()
	due, err := h.svc.Schedules.Due(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DueSchedulesResponse{
		Schedules: dueScheduleResponses(due),
		Count:     len(due),
		CheckedAt: formatTime(checkedAt),
	})
}

type RecordRunRequest struct {
	SiteID string `json:"siteId"`
}

type RecordRunResponse struct {
	Success   bool             `json:"success"`
	Schedule  ScheduleResponse `json:"schedule"`
	NextRunAt *string          `json:"nextRunAt"`
}

func (h *Handler) recordScheduleRun(w http.ResponseWriter, r *http.Request) {
	var req RecordRunRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.SiteID) == "" {
		writeError(w, http.StatusBadRequest, "siteId is required")
		return
	}
	siteID, err := parseUUIDField(req.SiteID, "siteId")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	sc, err := h.svc.Schedules.RecordRun(r.Context(), siteID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, RecordRunResponse{
		Success:   true,
		Schedule:  scheduleResponse(sc),
		NextRunAt: formatTimePtr(sc.NextRunAt),
	})
}

type KeywordsResponse struct {
	Keywords []KeywordResponse `json:"keywords"`
	Count    int               `json:"count,omitempty"`
	SiteName *string           `json:"siteName,omitempty"`
}

func (h *Handler) n8nKeywords(w http.ResponseWriter, r *http.Request) {
	siteID, ok := pathID(w, r, "siteId", "site")
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if limit == 0 {
		limit = defaultKeywordLimit
	}
	activeOnly, err := queryBool(r, "active", true)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	kws, err := h.svc.Sites.Keywords(r.Context(), siteID, store.KeywordFilter{ActiveOnly: activeOnly, Limit: limit})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, KeywordsResponse{Keywords: keywordResponses(kws), Count: len(kws)})
}

const defaultKeywordLimit = 10

type MarkKeywordRequest struct {
	KeywordID string `json:"keywordId"`
}

type KeywordEnvelope struct {
	Success bool            `json:"success"`
	Keyword KeywordResponse `json:"keyword"`
}

func (h *Handler) markKeywordUsed(w http.ResponseWriter, r *http.Request) {
	siteID, ok := pathID(w, r, "siteId", "site")
	if !ok {
		return
	}
	var req MarkKeywordRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.KeywordID) == "" {
		writeError(w, http.StatusBadRequest, "keywordId is required")
		return
	}
	keywordID, err := parseUUIDField(req.KeywordID, "keywordId")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	k, err := h.svc.Sites.MarkKeywordUsed(r.Context(), siteID, keywordID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, KeywordEnvelope{Success: true, Keyword: keywordResponse(k)})
}

type SearchArticlesResponse struct {
	Articles []ArticleSummary `json:"articles"`
	Count    int              `json:"count"`
	Keyword  *string          `json:"keyword"`
}

func (h *Handler) searchArticles(w http.ResponseWriter, r *http.Request) {
	siteID, ok := pathID(w, r, "siteId", "site")
	if !ok {
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	keyword := strings.TrimSpace(r.URL.Query().Get("keyword"))

	found, err := h.svc.Articles.Search(r.Context(), siteID, keyword, limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	resp := SearchArticlesResponse{Articles: articleSummaries(found), Count: len(found)}
	if keyword != "" {
		resp.Keyword = &keyword
	}
	writeJSON(w, http.StatusOK, resp)
}

type CreateArticleRequest struct {
	Title    string `json:"title"`
	Keyword  string `json:"keyword"`
	Angle    string `json:"angle"`
	WPPostID *int64 `json:"wpPostId"`
}

type ArticleEnvelope struct {
	Success bool            `json:"success"`
	Article ArticleResponse `json:"article"`
}

func (h *Handler) createArticle(w http.ResponseWriter, r *http.Request) {
	siteID, ok := pathID(w, r, "siteId", "site")
	if !ok {
		return
	}
	var req CreateArticleRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	a, err := h.svc.Articles.CreateDraft(r.Context(), siteID, articles.DraftRequest{
		Title:    req.Title,
		Keyword:  req.Keyword,
		Angle:    req.Angle,
		WPPostID: req.WPPostID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ArticleEnvelope{Success: true, Article: articleResponse(a)})
}
