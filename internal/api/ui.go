package api

import (
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"verifollow/internal/state"
)

var uiTemplates = template.Must(template.New("layout").Parse(`{{define "layout"}}
<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8"/>
  <meta name="viewport" content="width=device-width, initial-scale=1"/>
  <title>VeriFollow</title>
  <style>
    body{font-family:system-ui,-apple-system,Segoe UI,Roboto,Ubuntu,Cantarell,Noto Sans,sans-serif;max-width:880px;margin:32px auto;padding:0 16px;color:#0b0b0b;background:#fafafa}
    header{margin-bottom:24px}
    h1{font-size:22px;margin:0 0 8px}
    a{color:#0b63e5;text-decoration:none}
    a:hover{text-decoration:underline}
    .card{background:#fff;border:1px solid #e9e9e9;border-radius:10px;padding:16px;margin:12px 0}
    .row{display:flex;gap:12px;flex-wrap:wrap}
    .btn{display:inline-block;background:#0b63e5;color:#fff;border:none;padding:10px 14px;border-radius:8px;cursor:pointer}
    .btn.secondary{background:#444}
    .btn.danger{background:#b3261e}
    input[type=text]{padding:9px 10px;border:1px solid #dcdcdc;border-radius:8px;width:100%}
    label{display:block;font-size:13px;color:#444}
    .muted{color:#666}
    .mono{font-family:ui-monospace,SFMono-Regular,Menlo,Monaco,Consolas,monospace}
    .grid{display:grid;grid-template-columns:1fr 1fr;gap:12px}
    .list{margin:0;padding-left:18px}
    .status{display:inline-block;padding:4px 8px;border-radius:6px;background:#efefef;font-size:12px}
    .status.on{background:#d9f2e0}
    .status.off{background:#f6d9d7}
    footer{margin-top:24px;color:#666;font-size:12px}
  </style>
  </head>
<body>
  <header>
    <h1><a href="/">VeriFollow</a></h1>
    <div class="muted">Follows verified accounts detected in the watched thread</div>
  </header>
  {{template "content" .}}
  <footer>
    <div>API base: <span class="mono">/api/v1</span></div>
  </footer>
</body>
</html>
{{end}}

{{define "home"}}
  {{template "layout" .}}
{{end}}

{{define "content"}}
  {{if .Error}}
  <div class="card" style="border-color:#f2b8b5;background:#fff6f6">
    <strong style="color:#b3261e">Error:</strong> <span class="muted">{{.Error}}</span>
  </div>
  {{end}}
  <div class="card">
    <h2>Queue <span class="status">{{.Status.Status}}</span></h2>
    <div>Detected candidates: <strong>{{.Status.Detected}}</strong></div>
    <div>Processed {{.Status.Processed}} of {{.Status.Total}} · queued {{.Status.Remaining}} · followed {{.Status.Success}}</div>
    {{if .Status.RunID}}<div class="muted">Run: <span class="mono">{{.Status.RunID}}</span></div>{{end}}
    <div class="row" style="margin-top:12px">
      <form method="post" action="/ui/follow/start"><button class="btn" type="submit">Start</button></form>
      <form method="post" action="/ui/follow/pause"><button class="btn secondary" type="submit">Pause</button></form>
      <form method="post" action="/ui/follow/stop"><button class="btn danger" type="submit">Stop</button></form>
      <a class="btn secondary" href="/">Refresh</a>
    </div>
    <div class="muted">POST /api/v1/follow/start · /pause · /stop</div>
  </div>

  <div class="card">
    <h3>Cooldown</h3>
    {{if .Rate.Active}}
      <div>Paused until <strong>{{.Rate.PauseUntil}}</strong> ({{.Rate.Remaining}} left)</div>
      <form method="post" action="/ui/limits/rate/resume" style="margin-top:8px">
        <button class="btn" type="submit">Resume now</button>
      </form>
    {{else}}
      <div class="muted">Not in cooldown</div>
    {{end}}
    <div>{{.Rate.Successes}} follows since last pause · pauses after {{.Rate.Threshold}} for {{.Rate.Duration}}</div>
    <div class="muted">GET /api/v1/limits/rate</div>
  </div>

  <div class="card">
    <h3>Daily limit</h3>
    <div>Today <strong>{{.Daily.Today}}</strong> of {{.Daily.Limit}}{{if .Daily.Active}} · <span class="status off">limit reached</span>{{end}}</div>
    <div class="muted">Resets at {{.Daily.ResetAt}}</div>
    <form method="post" action="/ui/stats/reset" style="margin-top:8px">
      <button class="btn secondary" type="submit">Reset today</button>
    </form>
    <div class="muted">POST /api/v1/stats/reset</div>
  </div>

  <div class="card">
    <h3>Settings</h3>
    <form method="post" action="/ui/settings">
      <div class="grid">
        <label>Min delay (ms)<input type="text" name="min_delay_ms" value="{{.Settings.MinDelayMs}}"/></label>
        <label>Max delay (ms)<input type="text" name="max_delay_ms" value="{{.Settings.MaxDelayMs}}"/></label>
        <label>Pause after follows<input type="text" name="rate_limit_threshold" value="{{.Settings.RateLimitThreshold}}"/></label>
        <label>Pause duration (ms)<input type="text" name="rate_limit_duration_ms" value="{{.Settings.RateLimitDurationMs}}"/></label>
        <label>Daily follow limit<input type="text" name="daily_follow_limit" value="{{.Settings.DailyFollowLimit}}"/></label>
        <label style="align-self:end"><input type="checkbox" name="verified_only" {{if .Settings.VerifiedOnly}}checked{{end}}/> Verified accounts only</label>
      </div>
      <div style="margin-top:12px"><button class="btn" type="submit">Save</button></div>
    </form>
    <div class="muted">PUT /api/v1/settings</div>
  </div>

  <div class="card">
    <h3>Follow history</h3>
    {{if .Stats.History}}
      <ul class="list">
      {{range .Stats.History}}
        <li><span class="mono">{{.Date}}</span> · {{.Count}} followed</li>
      {{end}}
      </ul>
    {{else}}
      <div class="muted">No past days recorded</div>
    {{end}}
    <div class="muted">GET /api/v1/stats/daily</div>
  </div>
{{end}}
`))

type uiRateView struct {
	Active     bool
	PauseUntil string
	Remaining  string
	Threshold  int
	Duration   string
	Successes  int
}

type uiDailyView struct {
	Active  bool
	Today   int
	Limit   int
	ResetAt string
}

// RegisterUIRoutes registers the minimal HTML UI without JS
func (a *API) RegisterUIRoutes(router *gin.Engine) {
	router.SetHTMLTemplate(uiTemplates)
	router.GET("/", a.UIHome)
	router.POST("/ui/follow/start", a.UIStart)
	router.POST("/ui/follow/pause", a.UIPause)
	router.POST("/ui/follow/stop", a.UIStop)
	router.POST("/ui/limits/rate/resume", a.UIResumeRateLimit)
	router.POST("/ui/stats/reset", a.UIResetStats)
	router.POST("/ui/settings", a.UISaveSettings)
}

// UIHome renders the dashboard
func (a *API) UIHome(c *gin.Context) {
	a.renderHome(c, http.StatusOK, "")
}

func (a *API) renderHome(c *gin.Context, code int, errMsg string) {
	s := a.engine.Snapshot()
	rate := a.engine.RateLimitInfo()
	daily := a.engine.DailyLimitInfo()
	stats, err := a.store.DailyStats(time.Now())
	if err != nil && errMsg == "" {
		errMsg = "daily stats unavailable"
	}
	a.mu.Lock()
	settings := a.settings
	a.mu.Unlock()

	rateView := uiRateView{
		Active:    rate.IsRateLimited,
		Threshold: rate.Threshold,
		Duration:  (time.Duration(rate.DurationMs) * time.Millisecond).String(),
		Successes: rate.SuccessSincePause,
	}
	if rate.PauseUntil != nil {
		rateView.PauseUntil = rate.PauseUntil.Format("15:04:05")
		rateView.Remaining = (time.Duration(rate.RemainingMs) * time.Millisecond).Round(time.Second).String()
	}
	dailyView := uiDailyView{
		Active:  daily.IsDailyLimited,
		Today:   daily.TodayCount,
		Limit:   daily.Limit,
		ResetAt: daily.ResetAt.Format("Mon 15:04"),
	}
	c.HTML(code, "home", gin.H{
		"Status": statusResponse{
			Total:     s.Total,
			Remaining: s.Remaining,
			Processed: s.Processed,
			Success:   s.Success,
			Status:    s.Status,
			Detected:  a.intake.Detected(),
			RunID:     s.RunID,
		},
		"Rate":     rateView,
		"Daily":    dailyView,
		"Stats":    stats,
		"Settings": settings,
		"Error":    errMsg,
	})
}

// UIStart starts the run and returns to the dashboard
func (a *API) UIStart(c *gin.Context) {
	a.engine.Start()
	c.Redirect(http.StatusFound, "/")
}

// UIPause pauses the run and returns to the dashboard
func (a *API) UIPause(c *gin.Context) {
	a.engine.Pause()
	c.Redirect(http.StatusFound, "/")
}

// UIStop stops the run and returns to the dashboard
func (a *API) UIStop(c *gin.Context) {
	a.engine.Stop()
	c.Redirect(http.StatusFound, "/")
}

// UIResumeRateLimit lifts an active cooldown from the dashboard
func (a *API) UIResumeRateLimit(c *gin.Context) {
	a.engine.ResumeAfterRateLimit()
	c.Redirect(http.StatusFound, "/")
}

// UIResetStats zeroes today's counter from the dashboard
func (a *API) UIResetStats(c *gin.Context) {
	if err := a.store.ResetDailyStats(); err != nil {
		a.log.Error().Err(err).Msg("reset daily stats failed")
		a.renderHome(c, http.StatusInternalServerError, "reset daily stats failed")
		return
	}
	a.engine.ResumeFromDailyLimit()
	c.Redirect(http.StatusFound, "/")
}

// UISaveSettings applies the settings form and returns to the dashboard
func (a *API) UISaveSettings(c *gin.Context) {
	var req state.Settings
	fields := []struct {
		name string
		dst  *int
	}{
		{"min_delay_ms", &req.MinDelayMs},
		{"max_delay_ms", &req.MaxDelayMs},
		{"rate_limit_threshold", &req.RateLimitThreshold},
		{"rate_limit_duration_ms", &req.RateLimitDurationMs},
		{"daily_follow_limit", &req.DailyFollowLimit},
	}
	for _, f := range fields {
		n, err := strconv.Atoi(c.PostForm(f.name))
		if err != nil {
			a.renderHome(c, http.StatusBadRequest, "not a number: "+f.name)
			return
		}
		*f.dst = n
	}
	req.VerifiedOnly = c.PostForm("verified_only") == "on"

	if err := a.applySettings(req); err != nil {
		a.renderHome(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.store.SaveSettings(req); err != nil {
		a.log.Error().Err(err).Msg("persist settings failed")
		a.renderHome(c, http.StatusInternalServerError, "settings not saved")
		return
	}
	a.mu.Lock()
	a.settings = req
	a.mu.Unlock()
	c.Redirect(http.StatusFound, "/")
}
