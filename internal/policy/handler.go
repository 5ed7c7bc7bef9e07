package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/OldStager01/elastic-orchestrator/internal/logger"
	"github.com/OldStager01/elastic-orchestrator/internal/provision"
	"github.com/OldStager01/elastic-orchestrator/pkg/models"
)

var (
	ErrSchedulerClosed = errors.New("scheduler closed")
	ErrMissingManager  = errors.New("operational string manager is required")
	ErrMissingBean     = errors.New("service bean manager is required")
)

// EventSink receives everything a handler reports.
type EventSink interface {
	ThresholdNotified(event models.ThresholdEvent)
	PolicyAction(event models.SLAPolicyEvent)
}

type Config struct {
	// RequestTimeout bounds each synchronous manager call. Zero means no
	// bound.
	RequestTimeout time.Duration

	// RescheduleDelay is used when a decrement must be retried and the SLA
	// has no lower dampening time.
	RescheduleDelay time.Duration
}

type State string

const (
	StateDisconnected       State = "disconnected"
	StateIdle               State = "idle"
	StateIncrementScheduled State = "increment_scheduled"
	StateDecrementScheduled State = "decrement_scheduled"
)

type Option func(*Handler)

func WithScheduler(s Scheduler) Option {
	return func(h *Handler) {
		h.scheduler = s
		h.ownsScheduler = false
	}
}

func WithConfig(cfg Config) Option {
	return func(h *Handler) {
		h.config = cfg
	}
}

// Handler applies one SLA of one service instance. It turns threshold
// notifications into increment and decrement requests against the manager.
type Handler struct {
	sla           models.SLA
	elem          models.ServiceElement
	manager       provision.OperationalStringManager
	bean          provision.ServiceBeanManager
	scheduler     Scheduler
	ownsScheduler bool
	config        Config

	minServices     int
	maxServices     int
	upperDampening  time.Duration
	lowerDampening  time.Duration
	totalServices   int
	pendingRequests int
	incrementTask   *slot
	decrementTask   *slot
	generation      uint64
	haveDecremented bool
	lastCalculable  models.Calculable
	lastThresholds  models.ThresholdValues
	connected       bool

	id           string
	entry        *logrus.Entry
	sinks        []sinkRegistration
	nextSinkID   int
	removeElemFn func()
	mu           sync.Mutex
}

// slot holds a scheduled task. A task that fires only acts when its
// generation still occupies the slot.
type slot struct {
	task Task
	gen  uint64
}

type sinkRegistration struct {
	id   int
	sink EventSink
}

func NewHandler(sla models.SLA, elem models.ServiceElement, manager provision.OperationalStringManager,
	bean provision.ServiceBeanManager, opts ...Option) (*Handler, error) {
	if err := sla.Validate(); err != nil {
		return nil, err
	}
	if manager == nil {
		return nil, ErrMissingManager
	}
	if bean == nil {
		return nil, ErrMissingBean
	}

	h := &Handler{
		sla:           sla,
		elem:          elem.Copy(),
		manager:       manager,
		bean:          bean,
		ownsScheduler: true,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.scheduler == nil {
		h.scheduler = NewTimerScheduler()
		h.ownsScheduler = true
	}
	if h.config.RescheduleDelay <= 0 {
		h.config.RescheduleDelay = time.Second
	}
	h.deriveLocked()
	h.id = fmt.Sprintf("%s/%s/%s", h.elem.Key(), sla.ID, bean.ServiceBeanID())
	h.entry = logger.WithPolicy(h.elem.OperationalStringName, h.elem.Name, sla.ID).
		WithField("instance", shortID(bean.ServiceBeanID()))
	return h, nil
}

func (h *Handler) ID() string {
	return h.id
}

// Initialize connects the handler: it starts following element changes and
// primes the instance count.
func (h *Handler) Initialize(ctx context.Context) error {
	h.mu.Lock()
	if h.connected {
		h.mu.Unlock()
		return nil
	}
	h.connected = true
	h.mu.Unlock()

	remove := h.bean.AddElementChangeListener(h)
	h.mu.Lock()
	h.removeElemFn = remove
	h.mu.Unlock()

	ctx, cancel := h.requestContext(ctx)
	defer cancel()
	if !h.refreshTotal(ctx) {
		return fmt.Errorf("initialize %s: %w", h.ID(), provision.ErrManagerDecommissioned)
	}

	snap := h.Snapshot()
	h.log().Infof("Policy handler connected: total=%d min=%d max=%d",
		snap.TotalServices, snap.MinServices, snap.MaxServices)
	return nil
}

// Disconnect cancels scheduled work and stops reacting to notifications.
// Tasks already firing see the disconnect and do nothing.
func (h *Handler) Disconnect() {
	h.mu.Lock()
	if !h.connected {
		h.mu.Unlock()
		return
	}
	h.connected = false
	h.cancelIncrementLocked()
	h.cancelDecrementLocked()
	remove := h.removeElemFn
	h.removeElemFn = nil
	h.mu.Unlock()

	if remove != nil {
		remove()
	}
	h.log().Info("Policy handler disconnected")
}

// Close disconnects and stops the handler's own scheduler.
func (h *Handler) Close() {
	h.Disconnect()
	if h.ownsScheduler {
		h.scheduler.Shutdown()
	}
}

func (h *Handler) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connected
}

func (h *Handler) AddListener(sink EventSink) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextSinkID++
	id := h.nextSinkID
	h.sinks = append(h.sinks, sinkRegistration{id: id, sink: sink})
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, r := range h.sinks {
			if r.id == id {
				h.sinks = append(h.sinks[:i], h.sinks[i+1:]...)
				return
			}
		}
	}
}

// Notify handles one threshold notification. It never blocks on the
// manager while holding the handler lock.
func (h *Handler) Notify(calc models.Calculable, tv models.ThresholdValues, typ models.ThresholdType) {
	h.mu.Lock()
	if !h.connected {
		h.mu.Unlock()
		return
	}
	h.lastCalculable = calc
	h.lastThresholds = tv
	h.mu.Unlock()

	defer h.forwardThreshold(calc, tv, typ)

	switch typ {
	case models.ThresholdBreached:
		switch {
		case tv.AboveHigh(calc.Value):
			h.onHighBreach()
		case tv.BelowLow(calc.Value):
			h.onLowBreach()
		}
	case models.ThresholdCleared:
		h.onCleared()
	}
}

func (h *Handler) onHighBreach() {
	ctx, cancel := h.requestContext(context.Background())
	defer cancel()
	if !h.refreshTotal(ctx) {
		return
	}

	h.mu.Lock()
	if !h.connected {
		h.mu.Unlock()
		return
	}
	increment := incrementEligible(h.maxServices, h.totalServices, h.elem.Planned)
	if increment && h.incrementTask != nil {
		h.mu.Unlock()
		h.log().Debug("Increment already scheduled")
		return
	}
	h.cancelDecrementLocked()
	if !increment {
		h.mu.Unlock()
		h.log().Debugf("High breach ignored: total=%d planned=%d max=%d",
			h.totalServices, h.elem.Planned, h.maxServices)
		return
	}
	if h.upperDampening > 0 {
		err := h.scheduleLocked(&h.incrementTask, h.upperDampening, h.runIncrementTask)
		h.mu.Unlock()
		if err != nil {
			h.fatal("schedule increment", err)
			return
		}
		h.log().Debugf("Increment scheduled in %s", h.upperDampening)
		return
	}
	h.mu.Unlock()

	h.doIncrement()
}

func (h *Handler) onLowBreach() {
	ctx, cancel := h.requestContext(context.Background())
	defer cancel()
	if !h.refreshTotal(ctx) {
		return
	}

	h.mu.Lock()
	if !h.connected {
		h.mu.Unlock()
		return
	}
	decrement := h.totalServices > h.minServices && !h.haveDecremented
	if decrement && h.decrementTask != nil {
		h.mu.Unlock()
		h.log().Debug("Decrement already scheduled")
		return
	}
	h.cancelIncrementLocked()
	if !decrement {
		h.mu.Unlock()
		h.log().Debugf("Low breach ignored: total=%d min=%d decremented=%v",
			h.totalServices, h.minServices, h.haveDecremented)
		return
	}
	if h.lowerDampening > 0 {
		err := h.scheduleLocked(&h.decrementTask, h.lowerDampening, h.runDecrementTask)
		h.mu.Unlock()
		if err != nil {
			h.fatal("schedule decrement", err)
			return
		}
		h.log().Debugf("Decrement scheduled in %s", h.lowerDampening)
		return
	}
	h.mu.Unlock()

	if h.doDecrement() {
		h.rescheduleDecrement()
	}
}

func (h *Handler) onCleared() {
	h.mu.Lock()
	h.cancelIncrementLocked()
	h.cancelDecrementLocked()
	elem := h.elem
	h.mu.Unlock()

	ctx, cancel := h.requestContext(context.Background())
	defer cancel()
	if !h.refreshTotal(ctx) {
		return
	}

	pending, err := h.manager.GetPendingCount(ctx, elem)
	switch {
	case err == nil:
	case errors.Is(err, provision.ErrUnsupported):
		pending = 0
	case isFatal(err):
		h.fatal("get pending count", err)
		return
	default:
		h.log().Warnf("Failed to get pending count, assuming 0: %v", err)
		pending = 0
	}

	h.mu.Lock()
	if !h.connected {
		h.mu.Unlock()
		return
	}
	total := h.totalServices
	requests := h.pendingRequests
	planned := h.elem.Planned
	elem = h.elem
	h.mu.Unlock()

	excess := total + pending + requests - planned
	if excess <= 0 {
		return
	}

	trimmed, err := h.manager.Trim(ctx, elem, excess)
	if err != nil {
		if isFatal(err) {
			h.fatal("trim", err)
			return
		}
		h.log().Warnf("Trim of %d pending requests failed: %v", excess, err)
		return
	}
	h.log().Infof("Threshold cleared: trimmed %d of %d excess pending requests", trimmed, excess)
}

func (h *Handler) runIncrementTask(gen uint64) {
	h.mu.Lock()
	if !h.connected || h.incrementTask == nil || h.incrementTask.gen != gen {
		h.mu.Unlock()
		return
	}
	h.incrementTask = nil
	h.mu.Unlock()

	h.doIncrement()
}

func (h *Handler) runDecrementTask(gen uint64) {
	h.mu.Lock()
	if !h.connected || h.decrementTask == nil || h.decrementTask.gen != gen {
		h.mu.Unlock()
		return
	}
	h.decrementTask = nil
	h.mu.Unlock()

	if h.doDecrement() {
		h.rescheduleDecrement()
	}
}

// doIncrement re-checks the breach and the bounds against fresh counts
// before dispatching, since the conditions may have changed while the task
// was waiting.
func (h *Handler) doIncrement() {
	h.mu.Lock()
	if !h.connected {
		h.mu.Unlock()
		return
	}
	last, tv, elem := h.lastCalculable, h.lastThresholds, h.elem
	h.mu.Unlock()

	if !tv.AboveHigh(last.Value) {
		h.log().Debugf("Increment skipped, %.4f no longer above %.4f", last.Value, tv.CurrentHighThreshold)
		return
	}

	ctx, cancel := h.requestContext(context.Background())
	defer cancel()

	instances, err := h.manager.GetServiceBeanInstances(ctx, elem)
	if err != nil && isFatal(err) {
		h.fatal("get instances", err)
		return
	}
	pending, perr := h.manager.GetPendingCount(ctx, elem)
	if perr != nil {
		if isFatal(perr) {
			h.fatal("get pending count", perr)
			return
		}
		if !errors.Is(perr, provision.ErrUnsupported) {
			h.log().Warnf("Failed to get pending count, assuming 0: %v", perr)
		}
		pending = 0
	}

	h.mu.Lock()
	if !h.connected {
		h.mu.Unlock()
		return
	}
	if err == nil {
		h.totalServices = len(instances)
	} else {
		h.log().Warnf("Failed to refresh instance count, using cached %d: %v", h.totalServices, err)
	}
	known := h.totalServices + pending
	if !incrementEligible(h.maxServices, known, h.elem.Planned) {
		h.mu.Unlock()
		h.log().Debugf("Increment skipped: known=%d planned=%d max=%d", known, h.elem.Planned, h.maxServices)
		return
	}
	h.pendingRequests++
	elem = h.elem
	h.mu.Unlock()

	h.emit(models.ActionIncrementPending, nil, "")

	if err := h.manager.Increment(ctx, elem, h); err != nil {
		h.mu.Lock()
		if h.pendingRequests > 0 {
			h.pendingRequests--
		}
		h.mu.Unlock()
		if isFatal(err) {
			h.fatal("increment", err)
			return
		}
		h.log().Warnf("Increment request failed: %v", err)
		h.emit(models.ActionIncrementFailure, nil, err.Error())
		return
	}
	h.log().Infof("Increment requested: value=%.4f high=%.4f", last.Value, tv.CurrentHighThreshold)
}

// doDecrement reports true when the decrement should be rescheduled
// because this instance could not be found among the live instances.
func (h *Handler) doDecrement() bool {
	h.mu.Lock()
	if !h.connected || h.haveDecremented {
		h.mu.Unlock()
		return false
	}
	last, tv, elem := h.lastCalculable, h.lastThresholds, h.elem
	h.mu.Unlock()

	if !tv.BelowLow(last.Value) {
		h.log().Debugf("Decrement skipped, %.4f no longer below %.4f", last.Value, tv.CurrentLowThreshold)
		return false
	}

	ctx, cancel := h.requestContext(context.Background())
	defer cancel()

	instances, err := h.manager.GetServiceBeanInstances(ctx, elem)
	if err != nil {
		if isFatal(err) {
			h.fatal("get instances", err)
			return false
		}
		h.log().Warnf("Cannot verify instance membership, rescheduling: %v", err)
		return true
	}

	self, found := findInstance(instances, h.bean.ServiceBeanID())
	if !found {
		h.log().Info("Instance not among live instances, rescheduling decrement")
		return true
	}

	h.mu.Lock()
	if !h.connected {
		h.mu.Unlock()
		return false
	}
	h.totalServices = len(instances)
	if h.totalServices <= h.minServices || h.haveDecremented {
		h.mu.Unlock()
		return false
	}
	h.haveDecremented = true
	h.mu.Unlock()

	if err := h.manager.Decrement(ctx, self, true); err != nil {
		h.log().Warnf("Decrement request failed: %v", err)
		h.emit(models.ActionDecrementFailed, &self, err.Error())
		if isFatal(err) {
			h.fatal("decrement", err)
		}
		return false
	}

	h.log().Infof("Decrement requested: value=%.4f low=%.4f", last.Value, tv.CurrentLowThreshold)
	h.emit(models.ActionDecrementDestroySent, &self, "")
	return false
}

func (h *Handler) rescheduleDecrement() {
	h.mu.Lock()
	if !h.connected || h.haveDecremented || h.decrementTask != nil {
		h.mu.Unlock()
		return
	}
	delay := h.lowerDampening
	if delay <= 0 {
		delay = h.config.RescheduleDelay
	}
	err := h.scheduleLocked(&h.decrementTask, delay, h.runDecrementTask)
	h.mu.Unlock()
	if err != nil {
		h.fatal("reschedule decrement", err)
	}
}

// Succeeded is called by the manager when an increment produced an
// instance.
func (h *Handler) Succeeded(instance models.ServiceBeanInstance) {
	h.mu.Lock()
	if h.pendingRequests > 0 {
		h.pendingRequests--
	}
	h.mu.Unlock()

	h.emit(models.ActionIncrementSucceeded, &instance, "")
}

// Failed is called by the manager when an increment did not produce an
// instance. A resubmitted request stays pending.
func (h *Handler) Failed(elem models.ServiceElement, resubmitted bool) {
	h.mu.Lock()
	if !resubmitted && h.pendingRequests > 0 {
		h.pendingRequests--
	}
	h.mu.Unlock()

	reason := "provision failed"
	if resubmitted {
		reason = "provision failed, resubmitted"
	}
	h.emit(models.ActionIncrementFailure, nil, reason)
}

// SetSLA applies new thresholds and bounds. Instance and pending counts are
// kept.
func (h *Handler) SetSLA(sla models.SLA) error {
	if err := sla.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	h.sla = sla
	h.deriveLocked()
	h.mu.Unlock()

	h.log().Infof("SLA updated: low=%.4f high=%.4f min=%d max=%d",
		sla.LowThreshold, sla.HighThreshold, sla.MinServices, sla.MaxServices)
	return nil
}

func (h *Handler) SLA() models.SLA {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sla
}

// ServiceElementChanged keeps the cached element current. It does not
// trigger a decision. Notifications older than the cached version are
// dropped; listeners fire outside the manager lock and may arrive out of
// order.
func (h *Handler) ServiceElementChanged(prior, current models.ServiceElement) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current.Key() != h.elem.Key() {
		return
	}
	if current.Version < h.elem.Version {
		h.log().Debugf("Ignoring stale element change v%d, have v%d", current.Version, h.elem.Version)
		return
	}
	h.elem = current.Copy()
}

type Snapshot struct {
	ID                  string                 `json:"id"`
	SLA                 models.SLA             `json:"sla"`
	State               State                  `json:"state"`
	ServiceBeanID       string                 `json:"service_bean_id"`
	Planned             int                    `json:"planned"`
	MinServices         int                    `json:"min_services"`
	MaxServices         int                    `json:"max_services"`
	TotalServices       int                    `json:"total_services"`
	PendingRequests     int                    `json:"pending_requests"`
	HaveDecremented     bool                   `json:"have_decremented"`
	LastCalculable      models.Calculable      `json:"last_calculable"`
	LastThresholdValues models.ThresholdValues `json:"last_threshold_values"`
}

func (h *Handler) Snapshot() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Snapshot{
		ID:                  h.id,
		SLA:                 h.sla,
		State:               h.stateLocked(),
		ServiceBeanID:       h.bean.ServiceBeanID(),
		Planned:             h.elem.Planned,
		MinServices:         h.minServices,
		MaxServices:         h.maxServices,
		TotalServices:       h.totalServices,
		PendingRequests:     h.pendingRequests,
		HaveDecremented:     h.haveDecremented,
		LastCalculable:      h.lastCalculable,
		LastThresholdValues: h.lastThresholds,
	}
}

func (h *Handler) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stateLocked()
}

func (h *Handler) PendingRequests() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pendingRequests
}

func (h *Handler) stateLocked() State {
	switch {
	case !h.connected:
		return StateDisconnected
	case h.incrementTask != nil:
		return StateIncrementScheduled
	case h.decrementTask != nil:
		return StateDecrementScheduled
	default:
		return StateIdle
	}
}

func (h *Handler) deriveLocked() {
	h.minServices = h.sla.MinServices
	h.maxServices = h.sla.MaxServices
	h.upperDampening = h.sla.UpperThresholdDampeningTime
	h.lowerDampening = h.sla.LowerThresholdDampeningTime
}

func (h *Handler) scheduleLocked(target **slot, delay time.Duration, run func(uint64)) error {
	h.generation++
	gen := h.generation
	task, err := h.scheduler.Schedule(delay, func() { run(gen) })
	if err != nil {
		return err
	}
	*target = &slot{task: task, gen: gen}
	return nil
}

func (h *Handler) cancelIncrementLocked() {
	if h.incrementTask != nil {
		h.incrementTask.task.Cancel()
		h.incrementTask = nil
	}
}

func (h *Handler) cancelDecrementLocked() {
	if h.decrementTask != nil {
		h.decrementTask.task.Cancel()
		h.decrementTask = nil
	}
}

// refreshTotal updates the cached instance count. It reports false only
// when the handler had to disconnect.
func (h *Handler) refreshTotal(ctx context.Context) bool {
	h.mu.Lock()
	elem := h.elem
	h.mu.Unlock()

	instances, err := h.manager.GetServiceBeanInstances(ctx, elem)
	if err != nil {
		if isFatal(err) {
			h.fatal("get instances", err)
			return false
		}
		h.log().Warnf("Failed to refresh instance count, using cached value: %v", err)
		return true
	}

	h.mu.Lock()
	h.totalServices = len(instances)
	h.mu.Unlock()
	return true
}

func (h *Handler) fatal(op string, err error) {
	h.log().WithField("op", op).Errorf("Fatal policy handler error, disconnecting: %v", err)
	h.Disconnect()
}

func (h *Handler) requestContext(parent context.Context) (context.Context, context.CancelFunc) {
	if h.config.RequestTimeout > 0 {
		return context.WithTimeout(parent, h.config.RequestTimeout)
	}
	return context.WithCancel(parent)
}

func (h *Handler) forwardThreshold(calc models.Calculable, tv models.ThresholdValues, typ models.ThresholdType) {
	h.mu.Lock()
	event := models.ThresholdEvent{
		SLAID:         h.sla.ID,
		OpString:      h.elem.OperationalStringName,
		Element:       h.elem.Name,
		ServiceBeanID: h.bean.ServiceBeanID(),
		Type:          typ,
		Calculable:    calc,
		Thresholds:    tv,
		Timestamp:     time.Now(),
	}
	sinks := h.sinksLocked()
	h.mu.Unlock()

	for _, s := range sinks {
		s.ThresholdNotified(event)
	}
}

func (h *Handler) emit(action models.SLAPolicyAction, instance *models.ServiceBeanInstance, reason string) {
	h.mu.Lock()
	event := models.SLAPolicyEvent{
		Action:        action,
		SLAID:         h.sla.ID,
		OpString:      h.elem.OperationalStringName,
		Element:       h.elem.Name,
		ServiceBeanID: h.bean.ServiceBeanID(),
		Instance:      instance,
		Reason:        reason,
		Timestamp:     time.Now(),
	}
	sinks := h.sinksLocked()
	h.mu.Unlock()

	for _, s := range sinks {
		s.PolicyAction(event)
	}
}

func (h *Handler) sinksLocked() []EventSink {
	out := make([]EventSink, len(h.sinks))
	for i, r := range h.sinks {
		out[i] = r.sink
	}
	return out
}

func (h *Handler) log() *logrus.Entry {
	return h.entry
}

func incrementEligible(maxServices, total, planned int) bool {
	return maxServices == models.UndefinedServices ||
		(maxServices > total && total <= planned && maxServices > planned)
}

func isFatal(err error) bool {
	return errors.Is(err, provision.ErrManagerDecommissioned) || errors.Is(err, ErrSchedulerClosed)
}

func findInstance(instances []models.ServiceBeanInstance, serviceBeanID string) (models.ServiceBeanInstance, bool) {
	for _, inst := range instances {
		if inst.ServiceBeanID == serviceBeanID {
			return inst, true
		}
	}
	return models.ServiceBeanInstance{}, false
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
