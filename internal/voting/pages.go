package voting

import (
	"embed"
	"html/template"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yansimam/backend/internal/models"
	"github.com/yansimam/backend/internal/scoring"
)

//go:embed templates/*.html
var templatesFS embed.FS

// ThankYouPath is where a successful HTML submission lands.
const ThankYouPath = "/vote/thank-you"

// Templates parses the voting page templates for gin's HTML renderer.
func Templates() *template.Template {
	return template.Must(template.ParseFS(templatesFS, "templates/*.html"))
}

var statusMessages = map[string]string{
	CodeNotFound:         "This voting link does not exist.",
	CodeExpired:          "This voting session has ended.",
	CodeMissingPhoto:     "This voting session is not ready yet.",
	CodeAlreadyVoted:     "You have already voted in this session. Thank you!",
	CodeSubmitInProgress: "Your vote is already being submitted.",
}

type dimensionField struct {
	scoring.Dimension
	Value float64
}

type formView struct {
	Session    *models.ResolvedSession
	Dimensions []dimensionField
	Min        float64
	Max        float64
	Step       float64
	Verdict    string
	VisitorID  string
	Code       string
	Error      string
}

type statusView struct {
	Code    string
	Message string
}

func newFormView(b *Ballot, values map[string]float64, verdict models.Verdict) formView {
	v := formView{Session: b.Session, Min: scoring.Min, Max: scoring.Max, Step: scoring.Step, Verdict: string(verdict)}
	for _, d := range scoring.Dimensions() {
		val, ok := values[d.Key]
		if !ok || math.IsNaN(val) || val < scoring.Min || val > scoring.Max {
			val = scoring.Default
		}
		v.Dimensions = append(v.Dimensions, dimensionField{Dimension: d, Value: val})
	}
	return v
}

func (h *Handler) renderStatus(c *gin.Context, err error) {
	code := Code(err)
	msg, ok := statusMessages[code]
	if !ok {
		msg = err.Error()
	}
	c.HTML(HTTPStatus(code), "status.html", statusView{Code: code, Message: msg})
}

// renderPage writes the view for a page that did not reach READY.
func (h *Handler) renderPage(c *gin.Context, p *Page) {
	switch p.State() {
	case StateAlreadyVoted:
		h.renderStatus(c, ErrAlreadyVoted)
	default:
		h.renderStatus(c, p.Err())
	}
}

// Page handles GET /vote/:token. The browser computes its fingerprint after the first
// render; when that fingerprint has already voted the page script reloads with
// ?visitor_id= so the prior-vote check runs against the real identity.
func (h *Handler) Page(c *gin.Context) {
	p := NewPage(h.svc, c.Param("token"), h.identityFor(c, ""))
	if p.Load(c.Request.Context()) != StateReady {
		h.renderPage(c, p)
		return
	}
	view := newFormView(p.Ballot(), nil, "")
	view.VisitorID = strings.TrimSpace(c.Query(FieldVisitorID))
	c.HTML(http.StatusOK, "vote.html", view)
}

// SubmitForm handles POST /vote/:token.
func (h *Handler) SubmitForm(c *gin.Context) {
	p := NewPage(h.svc, c.Param("token"), h.identityFor(c, ""))
	if p.Load(c.Request.Context()) != StateReady {
		h.renderPage(c, p)
		return
	}

	scores := formScores(c)
	verdict := models.Verdict(strings.TrimSpace(c.PostForm("verdict")))
	_, err := p.Submit(c.Request.Context(), scores, verdict)
	if err == nil {
		c.Redirect(http.StatusSeeOther, ThankYouPath)
		return
	}
	if !p.CanSubmit() {
		h.renderPage(c, p)
		return
	}
	code := Code(err)
	view := newFormView(p.Ballot(), scores, verdict)
	view.VisitorID = strings.TrimSpace(c.PostForm(FieldVisitorID))
	view.Code = code
	view.Error = err.Error()
	if msg, ok := statusMessages[code]; ok {
		view.Error = msg
	}
	c.HTML(HTTPStatus(code), "vote.html", view)
}

// ThankYou handles GET /vote/thank-you.
func (h *Handler) ThankYou(c *gin.Context) {
	c.HTML(http.StatusOK, "thanks.html", nil)
}

// formScores reads the five dimension fields. Unparsable values become NaN so
// validation reports them.
func formScores(c *gin.Context) map[string]float64 {
	scores := make(map[string]float64, len(scoring.Dimensions()))
	for _, d := range scoring.Dimensions() {
		raw, ok := c.GetPostForm(d.Key)
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			v = math.NaN()
		}
		scores[d.Key] = v
	}
	return scores
}
