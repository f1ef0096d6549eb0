package logroute

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/logwirehq/logwire/pkg/common/logctx"
	"github.com/logwirehq/logwire/pkg/ratelimit"

	"github.com/pkg/errors"
	"github.com/wneessen/go-mail"
)

type mailOptions struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Username string `json:"username" yaml:"username"`
	Password string `json:"password" yaml:"password"`

	From          string   `json:"from" yaml:"from"`
	To            []string `json:"to" yaml:"to"`
	SubjectPrefix string   `json:"subject_prefix" yaml:"subject_prefix"`

	// Rate throttles submissions; records over the allowance are dropped.
	Rate *RateSpec `json:"rate" yaml:"rate"`
	// QueueSize bounds the submission queue; records hitting a full queue
	// are dropped.
	QueueSize   int      `json:"queue_size" yaml:"queue_size"`
	SendTimeout Duration `json:"send_timeout" yaml:"send_timeout"`
}

func (o mailOptions) validate() error {
	if o.Host == "" {
		return errors.New("mail sink needs a host")
	}
	if o.From == "" {
		return errors.New("mail sink needs a from address")
	}
	if len(o.To) == 0 {
		return errors.New("mail sink needs at least one recipient")
	}
	if o.Rate != nil {
		if err := validateRate(*o.Rate); err != nil {
			return err
		}
	}

	return nil
}

// mailer submits one rendered message. The SMTP client hides behind it so
// tests can swap in a recording fake.
type mailer interface {
	Send(ctx context.Context, subject, body string) error
}

type smtpMailer struct {
	client *mail.Client
	from   string
	to     []string
}

func newSMTPMailer(o mailOptions) (*smtpMailer, error) {
	clientOpts := []mail.Option{
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if o.Port != 0 {
		clientOpts = append(clientOpts, mail.WithPort(o.Port))
	}
	if o.Username != "" {
		clientOpts = append(clientOpts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(o.Username),
			mail.WithPassword(o.Password),
		)
	}

	client, err := mail.NewClient(o.Host, clientOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "cannot build smtp client")
	}

	return &smtpMailer{client: client, from: o.From, to: o.To}, nil
}

func (m *smtpMailer) Send(ctx context.Context, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return errors.Wrap(err, "invalid from address")
	}
	if err := msg.To(m.to...); err != nil {
		return errors.Wrap(err, "invalid recipient address")
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	return m.client.DialAndSendWithContext(ctx, msg)
}

type mailJob struct {
	subject string
	body    string
}

// mailSink renders entries into plain-text messages and submits them from a
// background worker, so slow SMTP never blocks the logging call site.
type mailSink struct {
	name        string
	l           *slog.Logger
	sender      mailer
	limiter     *ratelimit.Limiter
	prefix      string
	sendTimeout time.Duration

	queue chan mailJob
	done  chan struct{}

	mu     sync.Mutex
	closed bool
}

func newMailSink(name string, c HandlerConfig, env SinkEnv) (Sink, error) {
	var o mailOptions
	if err := DecodeOptions(c.Options, &o); err != nil {
		return nil, err
	}
	if err := o.validate(); err != nil {
		return nil, err
	}

	sender, err := newSMTPMailer(o)
	if err != nil {
		return nil, err
	}

	return startMailSink(name, o, env, sender), nil
}

func startMailSink(name string, o mailOptions, env SinkEnv, sender mailer) *mailSink {
	diag := env.Diag
	if diag == nil {
		diag = logctx.NopLogger()
	}

	queueSize := o.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}

	sendTimeout := o.SendTimeout.AsDuration()
	if sendTimeout <= 0 {
		sendTimeout = 30 * time.Second
	}

	var limiter *ratelimit.Limiter
	if o.Rate != nil {
		limiter = ratelimit.New(o.Rate.Limit(), ratelimit.WithLogger(env.Diag))
	}

	s := &mailSink{
		name:        name,
		l:           diag.With(slog.String("component", "mail_sink"), slog.String("handler", name)),
		sender:      sender,
		limiter:     limiter,
		prefix:      o.SubjectPrefix,
		sendTimeout: sendTimeout,
		queue:       make(chan mailJob, queueSize),
		done:        make(chan struct{}),
	}
	go s.worker()

	return s
}

func (s *mailSink) Emit(ctx context.Context, e Entry) error {
	if s.limiter != nil && !s.limiter.TryAcquire() {
		countDropped(s.name, dropReasonThrottled)
		return nil
	}

	job := mailJob{
		subject: s.subject(e),
		body:    renderBody(e),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		countDropped(s.name, dropReasonClosed)
		return nil
	}

	select {
	case s.queue <- job:
	default:
		countDropped(s.name, dropReasonQueueFull)
	}

	return nil
}

// Close stops accepting entries, lets the worker drain the queue and waits
// for it.
func (s *mailSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	<-s.done

	return nil
}

func (s *mailSink) worker() {
	defer close(s.done)

	for job := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
		err := s.sender.Send(ctx, job.subject, job.body)
		cancel()

		if err != nil {
			countDropped(s.name, dropReasonSendFailed)
			s.l.Warn("cannot submit mail", logctx.Error(err))
		}
	}
}

func (s *mailSink) subject(e Entry) string {
	var b strings.Builder

	if s.prefix != "" {
		b.WriteString(s.prefix)
		b.WriteString(" ")
	}
	b.WriteString(strings.ToUpper(e.Level.String()))
	b.WriteString(" ")
	b.WriteString(e.Logger)
	b.WriteString(": ")
	b.WriteString(e.Record.Message)

	subject := strings.ReplaceAll(b.String(), "\n", " ")
	if len(subject) > 180 {
		subject = subject[:180]
	}

	return subject
}

func validateMailSink(name string, c HandlerConfig) error {
	var o mailOptions
	if err := DecodeOptions(c.Options, &o); err != nil {
		return err
	}

	return o.validate()
}

func init() {
	RegisterSinkKind(SinkKindMail, SinkKind{
		New:      newMailSink,
		Validate: validateMailSink,
	})
}
