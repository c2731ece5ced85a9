package postgres

const siteColumns = `
    id, name, slug, description, system_prompt,
    wp_url, wp_username, wp_app_password, n8n_webhook_url,
    is_active, created_at, updated_at`

const queryGetSite = `SELECT` + siteColumns + `
FROM sites
WHERE id = $1
`

const queryListSites = `SELECT` + siteColumns + `
FROM sites
ORDER BY created_at DESC
`

const queryInsertSite = `
INSERT INTO sites (id, name, slug, description, system_prompt, wp_url, wp_username, wp_app_password, n8n_webhook_url, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

const queryUpdateSite = `
UPDATE sites
SET name = $2, slug = $3, description = $4, system_prompt = $5,
    wp_url = $6, wp_username = $7, wp_app_password = $8, n8n_webhook_url = $9,
    is_active = $10, updated_at = $11
WHERE id = $1
`

const queryDeleteSite = `
DELETE FROM sites WHERE id = $1
`

const querySlugTaken = `
SELECT EXISTS (SELECT 1 FROM sites WHERE slug = $1 AND id <> $2)
`

const jobColumns = `
    id, site_id, wp_post_id, idempotency_key, status,
    result_data, error_message, started_at, completed_at,
    created_at, updated_at`

const queryGetJob = `SELECT` + jobColumns + `
FROM article_jobs
WHERE id = $1
`

const queryFindJobByIdempotencyKey = `SELECT` + jobColumns + `
FROM article_jobs
WHERE idempotency_key = $1
`

const queryFindActiveJob = `SELECT` + jobColumns + `
FROM article_jobs
WHERE site_id = $1 AND wp_post_id = $2
  AND status IN ('pending', 'processing')
ORDER BY created_at DESC
LIMIT 1
`

// NULL parameters disable the corresponding filter.
const queryListJobs = `SELECT` + jobColumns + `
FROM article_jobs
WHERE ($1::uuid IS NULL OR site_id = $1)
  AND ($2::text IS NULL OR status = $2)
ORDER BY created_at DESC
LIMIT $3
`

const queryListStaleJobs = `SELECT` + jobColumns + `
FROM article_jobs
WHERE status = 'processing'
  AND COALESCE(started_at, updated_at) < $1
ORDER BY created_at ASC
LIMIT $2
`

const queryInsertJob = `
INSERT INTO article_jobs (id, site_id, wp_post_id, idempotency_key, status, result_data, error_message, started_at, completed_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`

const queryUpdateJob = `
UPDATE article_jobs
SET wp_post_id = $2, status = $3, result_data = $4, error_message = $5,
    started_at = $6, completed_at = $7, updated_at = $8
WHERE id = $1 AND status = $9
`

const queryDeleteJob = `
DELETE FROM article_jobs WHERE id = $1 AND status = $2
`

const queryJobStatus = `
SELECT status FROM article_jobs WHERE id = $1
`

const scheduleColumns = `
    id, site_id, is_enabled, frequency_type, time_of_day, days_of_week,
    custom_interval_hours, articles_per_run, last_run_at, next_run_at,
    created_at, updated_at`

const queryGetSchedule = `SELECT` + scheduleColumns + `
FROM schedule_settings
WHERE site_id = $1
`

const queryInsertSchedule = `
INSERT INTO schedule_settings (id, site_id, is_enabled, frequency_type, time_of_day, days_of_week, custom_interval_hours, articles_per_run, last_run_at, next_run_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
`

const queryUpdateSchedule = `
UPDATE schedule_settings
SET is_enabled = $2, frequency_type = $3, time_of_day = $4, days_of_week = $5,
    custom_interval_hours = $6, articles_per_run = $7, last_run_at = $8,
    next_run_at = $9, updated_at = $10
WHERE site_id = $1
`

const queryListDueSchedules = `
SELECT
    sc.id, sc.site_id, sc.is_enabled, sc.frequency_type, sc.time_of_day, sc.days_of_week,
    sc.custom_interval_hours, sc.articles_per_run, sc.last_run_at, sc.next_run_at,
    sc.created_at, sc.updated_at,
    s.id, s.name, s.slug, s.description, s.system_prompt,
    s.wp_url, s.wp_username, s.wp_app_password, s.n8n_webhook_url,
    s.is_active, s.created_at, s.updated_at
FROM schedule_settings sc
JOIN sites s ON s.id = sc.site_id
WHERE sc.is_enabled = true
  AND sc.next_run_at <= $1
  AND s.is_active = true
ORDER BY sc.next_run_at ASC
`

const keywordColumns = `
    id, site_id, keyword, priority, is_active, use_count, last_used_at,
    created_at, updated_at`

// A NULL limit returns every row.
const queryListKeywords = `SELECT` + keywordColumns + `
FROM keywords
WHERE site_id = $1
  AND ($2::boolean = false OR is_active = true)
ORDER BY priority DESC, created_at ASC
LIMIT $3
`

const queryGetKeyword = `SELECT` + keywordColumns + `
FROM keywords
WHERE site_id = $1 AND id = $2
`

const queryDeleteSiteKeywords = `
DELETE FROM keywords WHERE site_id = $1
`

const queryInsertKeyword = `
INSERT INTO keywords (id, site_id, keyword, priority, is_active, use_count, last_used_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

const queryUpdateKeyword = `
UPDATE keywords
SET keyword = $2, priority = $3, is_active = $4, use_count = $5,
    last_used_at = $6, updated_at = $7
WHERE id = $1
`

const queryMaxKeywordPriority = `
SELECT COALESCE(MAX(priority), 0) FROM keywords WHERE site_id = $1
`

const articleColumns = `
    id, site_id, title, content_html, status, source_data,
    feedback_history, wp_post_id, created_at, updated_at`

const queryGetArticle = `SELECT` + articleColumns + `
FROM articles
WHERE id = $1
`

const queryListArticles = `SELECT` + articleColumns + `
FROM articles
WHERE site_id = $1
ORDER BY created_at DESC
LIMIT $2
`

const queryInsertArticle = `
INSERT INTO articles (id, site_id, title, content_html, status, source_data, feedback_history, wp_post_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

const queryUpdateArticle = `
UPDATE articles
SET title = $2, content_html = $3, status = $4, source_data = $5,
    feedback_history = $6, wp_post_id = $7, updated_at = $8
WHERE id = $1
`

const userColumns = `
    id, firebase_uid, email, display_name, role, created_at, updated_at`

const queryListUsers = `SELECT` + userColumns + `
FROM platform_users
ORDER BY created_at DESC
`

const queryGetUser = `SELECT` + userColumns + `
FROM platform_users
WHERE id = $1
`

const queryUpsertUser = `
INSERT INTO platform_users (id, firebase_uid, email, display_name, role, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (firebase_uid) DO UPDATE
SET email = EXCLUDED.email,
    display_name = EXCLUDED.display_name,
    updated_at = EXCLUDED.updated_at
RETURNING` + userColumns + `
`

const queryUpdateUser = `
UPDATE platform_users
SET email = $2, display_name = $3, role = $4, updated_at = $5
WHERE id = $1
`

const queryDeleteUser = `
DELETE FROM platform_users WHERE id = $1
`
