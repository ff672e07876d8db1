package assistant

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/ashureev/mutuelle-assistant/internal/domain"
)

// UnavailableMarker stands in for any slot the context does not carry.
const UnavailableMarker = "Données indisponibles"

// NotApplicableMarker fills the member slot for roles that never carry
// member data.
const NotApplicableMarker = "non applicable"

const currency = "FCFA"

var frenchMonths = [...]string{
	"janvier", "février", "mars", "avril", "mai", "juin",
	"juillet", "août", "septembre", "octobre", "novembre", "décembre",
}

// Compiler renders a ChatContext into the system prompt.
// Output depends only on the context and the clock.
type Compiler struct {
	now     func() time.Time
	loc     *time.Location
	printer *message.Printer
	logger  *slog.Logger
}

// CompilerOption configures a Compiler.
type CompilerOption func(*Compiler)

// WithClock fixes the instant used for "today".
func WithClock(now func() time.Time) CompilerOption {
	return func(c *Compiler) { c.now = now }
}

// WithLocation sets the time zone dates are rendered in.
func WithLocation(loc *time.Location) CompilerOption {
	return func(c *Compiler) { c.loc = loc }
}

// WithCompilerLogger sets the logger used for compile failures.
func WithCompilerLogger(logger *slog.Logger) CompilerOption {
	return func(c *Compiler) { c.logger = logger }
}

// NewCompiler creates a French-locale prompt compiler.
func NewCompiler(opts ...CompilerOption) *Compiler {
	c := &Compiler{
		now:     time.Now,
		loc:     time.Local,
		printer: message.NewPrinter(language.French),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile renders the full prompt. Every section is always present; absent
// slots render as UnavailableMarker.
func (c *Compiler) Compile(ctx ChatContext) (string, error) {
	if !ctx.HasIdentity() {
		return "", ErrNoIdentity
	}
	user := ctx.UserInfo

	var b strings.Builder
	b.WriteString("Tu es l'assistant virtuel d'une mutuelle d'entraide. ")
	b.WriteString("Tu aides les utilisateurs à comprendre leurs cotisations, leur épargne, leurs emprunts et le fonctionnement de la mutuelle.\n")
	fmt.Fprintf(&b, "Date du jour : %s\n", c.date(c.now()))

	section(&b, "UTILISATEUR")
	item(&b, "Nom", user.FullName())
	item(&b, "Rôle", roleLabel(user.Role))
	if user.Email != "" {
		item(&b, "Email", user.Email)
	}

	section(&b, "PARAMÈTRES DE LA MUTUELLE")
	if cfg := ctx.ConfigData; cfg != nil {
		item(&b, "Frais d'inscription", c.amount(cfg.EnrollmentFee))
		item(&b, "Cotisation de solidarité", c.amount(cfg.SolidarityContribution))
		item(&b, "Taux d'intérêt", c.number(cfg.InterestRate)+" %")
		item(&b, "Coefficient d'emprunt", c.number(cfg.LoanCoefficient)+"x")
		item(&b, "Durée de l'exercice", c.printer.Sprintf("%d", cfg.ExerciseMonths)+" mois")
	} else {
		item(&b, "Paramètres", UnavailableMarker)
	}

	section(&b, "SESSION ET EXERCICE EN COURS")
	if s := ctx.SessionData; s != nil {
		item(&b, "Session", fmt.Sprintf("%s (%s), %s, statut %s", s.Name, s.SessionID, c.date(s.Date), statusLabel(s.Status)))
	} else {
		item(&b, "Session", UnavailableMarker)
	}
	if e := ctx.ExerciseData; e != nil {
		period := "depuis le " + c.date(e.StartDate)
		if !e.EndDate.IsZero() {
			period = fmt.Sprintf("du %s au %s", c.date(e.StartDate), c.date(e.EndDate))
		}
		item(&b, "Exercice", fmt.Sprintf("%s (%s), %s, statut %s", e.Name, e.ExerciseID, period, statusLabel(e.Status)))
	} else {
		item(&b, "Exercice", UnavailableMarker)
	}

	section(&b, "TABLEAU DE BORD DE LA MUTUELLE")
	if d := ctx.DashboardData; d != nil {
		item(&b, "Nombre de membres", c.printer.Sprintf("%d", d.MemberCount))
		item(&b, "Épargne totale", c.amount(d.TotalSavings))
		item(&b, "Emprunts en cours", c.printer.Sprintf("%d", d.ActiveLoans))
		item(&b, "Encours à rembourser", c.amount(d.TotalOutstanding))
		item(&b, "Fonds de solidarité", c.amount(d.SolidarityFund))
		item(&b, "Renflouements en attente", c.printer.Sprintf("%d", d.PendingBailouts))
	} else {
		item(&b, "Tableau de bord", UnavailableMarker)
	}

	switch {
	case user.Role.IsAdmin():
		section(&b, "RÔLE ADMINISTRATEUR")
		b.WriteString("L'utilisateur administre la mutuelle : il gère les sessions, les exercices, les membres et les renflouements. ")
		b.WriteString("Réponds du point de vue de la gestion globale, sans exposer la situation personnelle d'un membre précis.\n")
		item(&b, "Situation membre", NotApplicableMarker)
	case user.Role.IsMember():
		section(&b, "SITUATION FINANCIÈRE DU MEMBRE")
		if m := ctx.MemberData; m != nil {
			c.writeMember(&b, m)
		} else {
			item(&b, "Situation", UnavailableMarker)
		}
	default:
		section(&b, "STATUT VISITEUR")
		b.WriteString("L'utilisateur n'est pas encore membre. Explique le fonctionnement de la mutuelle et les conditions d'adhésion, ")
		b.WriteString("sans inventer de situation financière personnelle.\n")
		item(&b, "Situation membre", NotApplicableMarker)
	}

	section(&b, "CONSIGNES")
	b.WriteString("- Réponds toujours en français, de façon claire et bienveillante.\n")
	b.WriteString("- Appuie-toi uniquement sur les informations ci-dessus ; si une information est indisponible, dis-le simplement.\n")
	b.WriteString("- Exprime les montants en " + currency + ".\n")
	b.WriteString("- Utilise le Markdown (titres, listes) pour structurer les réponses longues.\n")
	b.WriteString("- Ne donne jamais de conseil engageant la mutuelle sans renvoyer vers un administrateur.\n")

	return b.String(), nil
}

// SafeCompile never fails: any error or panic yields a one-line prompt
// holding only the user's name.
func (c *Compiler) SafeCompile(ctx ChatContext) (prompt string) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("Prompt compilation panicked, using minimal prompt", "panic", r)
			prompt = minimalPrompt(ctx)
		}
	}()

	out, err := c.Compile(ctx)
	if err != nil {
		c.logger.Warn("Prompt compilation failed, using minimal prompt", "error", err)
		return minimalPrompt(ctx)
	}
	return out
}

// Acknowledgment is the scripted model turn that follows the prompt.
func (c *Compiler) Acknowledgment(ctx ChatContext) string {
	name := "l'utilisateur"
	if ctx.UserInfo != nil && ctx.UserInfo.DisplayName() != "" {
		name = ctx.UserInfo.DisplayName()
	}
	return fmt.Sprintf("Compris. Je suis l'assistant de la mutuelle et j'aiderai %s en m'appuyant uniquement sur ces informations.", name)
}

func minimalPrompt(ctx ChatContext) string {
	name := ""
	if ctx.UserInfo != nil {
		name = ctx.UserInfo.FullName()
	}
	return fmt.Sprintf("Tu es l'assistant de la mutuelle. L'utilisateur s'appelle %s.", name)
}

func (c *Compiler) writeMember(b *strings.Builder, m *domain.MemberRecord) {
	enrollment := fmt.Sprintf("%s payés sur %s (%s %%)", c.amount(m.EnrollmentPaid), c.amount(m.EnrollmentDue), c.number(m.EnrollmentProgress()))
	if m.EnrollmentComplete() {
		enrollment += ", inscription soldée"
	}
	item(b, "Inscription", enrollment)

	if m.SolidarityUpToDate() {
		item(b, "Solidarité", "à jour ("+c.amount(m.SolidarityPaid)+" versés)")
	} else {
		item(b, "Solidarité", "en retard, reste "+c.amount(m.SolidarityRemaining())+" à verser")
	}

	item(b, "Épargne totale", c.amount(m.SavingsTotal))

	if m.HasActiveLoan() {
		item(b, "Emprunt en cours", fmt.Sprintf("%s, dont %s remboursés, reste %s (%s %% remboursé)",
			c.amount(m.LoanAmount), c.amount(m.LoanRepaid), c.amount(m.LoanRemaining()), c.number(m.LoanProgress())))
	} else {
		item(b, "Emprunt en cours", "aucun")
	}

	if m.BailoutOwed > 0 {
		item(b, "Renflouement dû", c.amount(m.BailoutOwed))
	}
}

func (c *Compiler) amount(v float64) string {
	return c.number(v) + " " + currency
}

// number renders v with French grouping and at most two decimals.
func (c *Compiler) number(v float64) string {
	var s string
	if v == math.Trunc(v) {
		s = c.printer.Sprintf("%d", int64(v))
	} else {
		s = c.printer.Sprintf("%.2f", v)
		s = strings.TrimRight(strings.TrimRight(s, "0"), ",.")
	}
	// Plain spaces keep the prompt free of invisible characters.
	return strings.NewReplacer("\u202f", " ", "\u00a0", " ").Replace(s)
}

func (c *Compiler) date(t time.Time) string {
	if t.IsZero() {
		return "date inconnue"
	}
	t = t.In(c.loc)
	return fmt.Sprintf("%d %s %d", t.Day(), frenchMonths[t.Month()-1], t.Year())
}

func section(b *strings.Builder, title string) {
	b.WriteString("\n## ")
	b.WriteString(title)
	b.WriteString("\n")
}

func item(b *strings.Builder, label, value string) {
	b.WriteString("- ")
	b.WriteString(label)
	b.WriteString(" : ")
	b.WriteString(value)
	b.WriteString("\n")
}

func roleLabel(r domain.Role) string {
	switch {
	case r.IsAdmin():
		return "Administrateur"
	case r.IsMember():
		return "Membre"
	default:
		return "Visiteur"
	}
}

func statusLabel(s string) string {
	switch s {
	case domain.StatusPlanned:
		return "planifiée"
	case domain.StatusInProgress:
		return "en cours"
	case domain.StatusClosed:
		return "terminée"
	}
	return strings.ToLower(s)
}
