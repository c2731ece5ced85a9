package memory

import (
	"time"

	"github.com/google/uuid"

	"github.com/bestsmilejp/ai-creative-compass-studio/internal/domain"
)

// Fixed ids for the demo dataset so links and scripts stay stable across
// restarts.
var (
	DemoHealthSiteID = uuid.MustParse("8f6b1c3a-1d2e-4f10-9a11-000000000001")
	DemoWhiskySiteID = uuid.MustParse("8f6b1c3a-1d2e-4f10-9a11-000000000002")
	DemoShrineSiteID = uuid.MustParse("8f6b1c3a-1d2e-4f10-9a11-000000000003")
	DemoTechSiteID   = uuid.MustParse("8f6b1c3a-1d2e-4f10-9a11-000000000004")
)

// NewDemo returns a store preloaded with four sites (one inactive), a
// schedule and keywords per active site, a few jobs and draft articles.
func NewDemo(now time.Time) *Store {
	s := New()

	day := func(d int) time.Time { return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC) }

	sites := []domain.Site{
		{
			ID: DemoHealthSiteID, Name: "Health Media", Slug: "health-media",
			Description:  "Health and wellness news and guides",
			SystemPrompt: "Write expert, trustworthy articles about health.",
			Active:       true, CreatedAt: day(1), UpdatedAt: day(1),
		},
		{
			ID: DemoWhiskySiteID, Name: "Whisky Magazine", Slug: "whisky-magazine",
			Description:  "A magazine about the appeal of whisky",
			SystemPrompt: "Write knowledgeable articles that convey the appeal of whisky.",
			Active:       true, CreatedAt: day(2), UpdatedAt: day(2),
		},
		{
			ID: DemoShrineSiteID, Name: "Shrine Guide", Slug: "shrine-guide",
			Description:  "Travel guide to shrines across Japan",
			SystemPrompt: "Write friendly articles introducing Japanese shrine culture.",
			Active:       true, CreatedAt: day(3), UpdatedAt: day(3),
		},
		{
			ID: DemoTechSiteID, Name: "Tech Blog", Slug: "tech-blog",
			Description:  "Plain-language explanations of new technology",
			SystemPrompt: "Explain technical topics in an approachable way.",
			Active:       false, CreatedAt: day(4), UpdatedAt: day(4),
		},
	}
	for _, site := range sites {
		s.sites[site.ID] = site
	}

	keywords := map[uuid.UUID][]string{
		DemoHealthSiteID: {"sleep quality", "intermittent fasting", "morning stretches"},
		DemoWhiskySiteID: {"islay whisky", "japanese whisky", "whisky highball"},
		DemoShrineSiteID: {"ise grand shrine", "kyoto shrines", "goshuin"},
	}
	for siteID, words := range keywords {
		in := make([]domain.KeywordInput, len(words))
		for i, w := range words {
			in[i] = domain.KeywordInput{Keyword: w}
		}
		kws, _ := domain.BuildKeywordList(siteID, in, day(5))
		for _, k := range kws {
			s.keywords[k.ID] = k
		}

		sc := domain.DefaultSchedule(siteID, day(5))
		if siteID == DemoHealthSiteID {
			sc.Enabled = true
			sc.Reschedule(now)
		}
		s.schedules[siteID] = sc
	}

	post := func(id int64) *int64 { return &id }

	pending := domain.NewArticleJob(DemoHealthSiteID, post(101), "demo-health-101", now.Add(-10*time.Minute))
	s.jobs[pending.ID] = pending

	done := domain.NewArticleJob(DemoWhiskySiteID, post(202), "", now.Add(-2*time.Hour))
	done, _ = done.ApplyTransition(domain.JobStatusProcessing, domain.TransitionOptions{}, now.Add(-119*time.Minute))
	done, _ = done.ApplyTransition(domain.JobStatusCompleted, domain.TransitionOptions{}, now.Add(-110*time.Minute))
	s.jobs[done.ID] = done

	article, _ := domain.NewDraftArticle(DemoHealthSiteID, "Seven Habits for Better Sleep Quality", "sleep quality", "beginner guide", nil, now.Add(-time.Hour))
	article.ContentHTML = "<p>Good sleep starts long before bedtime.</p>"
	s.articles[article.ID] = article

	admin, _ := domain.NewPlatformUser("demo-super-admin", "admin@example.com", "Demo Admin", domain.RoleSuperAdmin, day(1))
	s.users[admin.ID] = admin

	return s
}
