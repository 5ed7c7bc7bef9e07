package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/OldStager01/elastic-orchestrator/internal/collector"
	"github.com/OldStager01/elastic-orchestrator/internal/events"
	"github.com/OldStager01/elastic-orchestrator/internal/logger"
	"github.com/OldStager01/elastic-orchestrator/internal/metrics"
	"github.com/OldStager01/elastic-orchestrator/internal/policy"
	"github.com/OldStager01/elastic-orchestrator/internal/provision"
	"github.com/OldStager01/elastic-orchestrator/internal/sampler"
	"github.com/OldStager01/elastic-orchestrator/internal/statistics"
	"github.com/OldStager01/elastic-orchestrator/internal/threshold"
	"github.com/OldStager01/elastic-orchestrator/pkg/models"
)

var ErrStopped = errors.New("orchestrator stopped")

type Config struct {
	SampleInterval time.Duration
	Watch          threshold.WatchConfig
	Policy         policy.Config
	Source         collector.MetricSource
}

// Orchestrator owns the provisioning manager and keeps one watch, sampler
// and policy handler per live instance and SLA of every dynamic element.
type Orchestrator struct {
	config    Config
	manager   *provision.Manager
	publisher *events.Publisher
	attached  map[string][]*attachment // service bean id
	versions  map[string]int64         // element key -> last applied version
	stopped   bool
	wg        sync.WaitGroup
	mu        sync.RWMutex
}

type attachment struct {
	instance models.ServiceBeanInstance
	slaID    string
	watch    *threshold.Watch
	sampler  *sampler.Sampler
	handler  *policy.Handler
}

// New builds the orchestrator and its manager. Instance and element
// callbacks already present in pcfg still run, after the orchestrator's.
func New(cfg Config, pcfg provision.Config, bus *events.EventBus) *Orchestrator {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 5 * time.Second
	}
	if cfg.Source == nil {
		cfg.Source = collector.NoopSource{}
	}

	o := &Orchestrator{
		config:    cfg,
		publisher: events.NewPublisher(bus),
		attached:  make(map[string][]*attachment),
		versions:  make(map[string]int64),
	}

	user := pcfg.Callbacks
	pcfg.Callbacks = provision.Callbacks{
		OnInstanceAdded: func(instance models.ServiceBeanInstance) {
			o.instanceAdded(instance)
			if user.OnInstanceAdded != nil {
				user.OnInstanceAdded(instance)
			}
		},
		OnInstanceRemoved: func(instance models.ServiceBeanInstance) {
			o.instanceRemoved(instance)
			if user.OnInstanceRemoved != nil {
				user.OnInstanceRemoved(instance)
			}
		},
		OnElementChanged: func(prior, current models.ServiceElement) {
			o.ServiceElementChanged(prior, current)
			if user.OnElementChanged != nil {
				user.OnElementChanged(prior, current)
			}
		},
	}
	o.manager = provision.NewManager(pcfg)
	return o
}

func (o *Orchestrator) Manager() *provision.Manager {
	return o.manager
}

func (o *Orchestrator) Deploy(ctx context.Context, ops *models.OperationalString) error {
	if o.isStopped() {
		return ErrStopped
	}
	// a redeployed element restarts its version sequence
	o.mu.Lock()
	for _, elem := range ops.AllElements() {
		delete(o.versions, elem.Key())
	}
	o.mu.Unlock()

	if err := o.manager.Deploy(ctx, ops); err != nil {
		return err
	}
	o.publisher.OpStringDeployed(ops)
	return nil
}

func (o *Orchestrator) Undeploy(ctx context.Context, name string) error {
	if err := o.manager.Undeploy(ctx, name); err != nil {
		return err
	}
	o.publisher.OpStringRemoved(name)
	return nil
}

func (o *Orchestrator) SetPlanned(ctx context.Context, opstring, name string, planned int) error {
	if o.isStopped() {
		return ErrStopped
	}
	return o.manager.SetPlanned(ctx, opstring, name, planned)
}

// UpdateSLA changes an SLA on an element. Attached handlers and watches
// pick the change up through the element change notification.
func (o *Orchestrator) UpdateSLA(opstring, name string, sla models.SLA) (models.ServiceElement, error) {
	if o.isStopped() {
		return models.ServiceElement{}, ErrStopped
	}
	return o.manager.UpdateSLA(opstring, name, sla)
}

func (o *Orchestrator) OperationalStrings() []*models.OperationalString {
	out := o.manager.OperationalStrings()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (o *Orchestrator) OperationalString(name string) (*models.OperationalString, error) {
	return o.manager.OperationalString(name)
}

type ServiceStatus struct {
	Element   models.ServiceElement        `json:"element"`
	Instances []models.ServiceBeanInstance `json:"instances"`
	Pending   int                          `json:"pending"`
	Handlers  []policy.Snapshot            `json:"handlers"`
	Windows   []WindowStatus               `json:"windows"`
}

// WindowStatus summarizes one watch window. Statistics is nil while the
// window is empty.
type WindowStatus struct {
	ServiceBeanID string               `json:"service_bean_id"`
	SLA           string               `json:"sla"`
	Statistics    *statistics.Snapshot `json:"statistics,omitempty"`
}

func (o *Orchestrator) Service(ctx context.Context, opstring, name string) (*ServiceStatus, error) {
	elem, err := o.manager.Element(opstring, name)
	if err != nil {
		return nil, err
	}
	instances, err := o.manager.GetServiceBeanInstances(ctx, elem)
	if err != nil {
		return nil, err
	}
	pending, err := o.manager.GetPendingCount(ctx, elem)
	if err != nil {
		return nil, err
	}
	return &ServiceStatus{
		Element:   elem,
		Instances: instances,
		Pending:   pending,
		Handlers:  o.Handlers(elem.Key()),
		Windows:   o.Windows(elem.Key()),
	}, nil
}

// Windows summarizes the watch windows of the handlers attached to a
// service.
func (o *Orchestrator) Windows(serviceKey string) []WindowStatus {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := []WindowStatus{}
	for beanID, atts := range o.attached {
		for _, a := range atts {
			if a.instance.ElementKey() != serviceKey {
				continue
			}
			ws := WindowStatus{ServiceBeanID: beanID, SLA: a.slaID}
			if stats := a.watch.Statistics(); stats.Count() > 0 {
				snap := stats.Snapshot()
				ws.Statistics = &snap
			}
			out = append(out, ws)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ServiceBeanID != out[j].ServiceBeanID {
			return out[i].ServiceBeanID < out[j].ServiceBeanID
		}
		return out[i].SLA < out[j].SLA
	})
	return out
}

// Handlers returns snapshots of the handlers attached to a service.
func (o *Orchestrator) Handlers(serviceKey string) []policy.Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := []policy.Snapshot{}
	for _, atts := range o.attached {
		for _, a := range atts {
			if a.instance.ElementKey() == serviceKey {
				out = append(out, a.handler.Snapshot())
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ServiceGauges implements metrics.GaugeSource.
func (o *Orchestrator) ServiceGauges() []metrics.ServiceGauge {
	handlers := make(map[string]int)
	o.mu.RLock()
	for _, atts := range o.attached {
		for _, a := range atts {
			handlers[a.instance.ElementKey()]++
		}
	}
	o.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var out []metrics.ServiceGauge
	for _, ops := range o.manager.OperationalStrings() {
		for _, elem := range ops.AllElements() {
			g := metrics.ServiceGauge{
				Service:  elem.Key(),
				Planned:  elem.Planned,
				Handlers: handlers[elem.Key()],
			}
			if instances, err := o.manager.GetServiceBeanInstances(ctx, elem); err == nil {
				g.Instances = len(instances)
			}
			if pending, err := o.manager.GetPendingCount(ctx, elem); err == nil {
				g.Pending = pending
			}
			out = append(out, g)
		}
	}
	return out
}

// Stop detaches every handler and stops provisioning.
func (o *Orchestrator) Stop() {
	logger.Info("Orchestrator stopping")

	o.mu.Lock()
	o.stopped = true
	var all []*attachment
	for id, atts := range o.attached {
		all = append(all, atts...)
		delete(o.attached, id)
	}
	o.mu.Unlock()

	for _, a := range all {
		o.release(a, "orchestrator stopped")
	}
	o.wg.Wait()
	o.manager.Close()

	logger.Info("Orchestrator stopped")
}

// Accepting reports whether deploys and planned changes are accepted.
func (o *Orchestrator) Accepting() bool {
	return !o.isStopped() && !o.manager.IsDecommissioned()
}

func (o *Orchestrator) isStopped() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.stopped
}

func (o *Orchestrator) instanceAdded(instance models.ServiceBeanInstance) {
	o.publisher.InstanceAdded(instance)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return
	}

	elem, err := o.manager.Element(instance.OperationalStringName, instance.ElementName)
	if err != nil {
		logger.WithService(instance.OperationalStringName, instance.ElementName).
			Warnf("Instance added for unknown element: %v", err)
		return
	}
	if !elem.IsDynamic() {
		return
	}
	for _, sla := range elem.SLAs {
		o.attachLocked(instance, elem, sla)
	}
}

func (o *Orchestrator) instanceRemoved(instance models.ServiceBeanInstance) {
	o.publisher.InstanceRemoved(instance)

	o.mu.Lock()
	atts := o.attached[instance.ServiceBeanID]
	delete(o.attached, instance.ServiceBeanID)
	o.mu.Unlock()

	for _, a := range atts {
		o.release(a, "instance removed")
	}
}

// ServiceElementChanged keeps attachments in line with the element's SLAs:
// changed SLAs are applied live, new ones attached, dropped ones released.
// A change older than the last one applied for the element is ignored.
func (o *Orchestrator) ServiceElementChanged(prior, current models.ServiceElement) {
	key := current.Key()

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return
	}
	if last := o.versions[key]; current.Version < last {
		o.mu.Unlock()
		logger.WithService(current.OperationalStringName, current.Name).
			Debugf("Ignoring stale element change v%d, have v%d", current.Version, last)
		return
	}
	o.versions[key] = current.Version

	o.publisher.ElementChanged(prior, current)
	if slasEqual(prior.SLAs, current.SLAs) {
		o.mu.Unlock()
		return
	}

	var released []*attachment
	for beanID, atts := range o.attached {
		if len(atts) == 0 || atts[0].instance.ElementKey() != current.Key() {
			continue
		}
		instance := atts[0].instance
		kept := atts[:0]
		have := make(map[string]bool)
		for _, a := range atts {
			sla, ok := current.SLA(a.slaID)
			if !ok {
				released = append(released, a)
				continue
			}
			have[a.slaID] = true
			if old, ok := prior.SLA(a.slaID); !ok || old != sla {
				o.applySLA(a, sla)
			}
			kept = append(kept, a)
		}
		o.attached[beanID] = kept
		if current.IsDynamic() {
			for _, sla := range current.SLAs {
				if !have[sla.ID] {
					o.attachLocked(instance, current, sla)
				}
			}
		}
	}
	o.mu.Unlock()

	for _, a := range released {
		o.release(a, "sla removed")
	}
}

func (o *Orchestrator) applySLA(a *attachment, sla models.SLA) {
	if err := a.handler.SetSLA(sla); err != nil {
		logger.WithPolicy(a.instance.OperationalStringName, a.instance.ElementName, sla.ID).
			Warnf("Rejected SLA update: %v", err)
		return
	}
	a.watch.Manager().SetThresholdValues(sla.ThresholdValues())
}

func (o *Orchestrator) attachLocked(instance models.ServiceBeanInstance, elem models.ServiceElement, sla models.SLA) {
	entry := logger.WithPolicy(instance.OperationalStringName, instance.ElementName, sla.ID).
		WithField("instance", instance.InstanceID)

	bean, err := o.manager.ServiceBeanManager(instance.ServiceBeanID)
	if err != nil {
		entry.Debugf("Instance gone before attach: %v", err)
		return
	}

	handler, err := policy.NewHandler(sla, elem, o.manager, bean, policy.WithConfig(o.config.Policy))
	if err != nil {
		entry.Errorf("Failed to create policy handler: %v", err)
		o.publisher.Error(elem.Key(), "Failed to create policy handler", err)
		return
	}
	handler.AddListener(o.publisher)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := handler.Initialize(ctx); err != nil {
		entry.Errorf("Failed to initialize policy handler: %v", err)
		handler.Close()
		return
	}
	// changes between the instance callback and listener registration
	if fresh, err := o.manager.Element(elem.OperationalStringName, elem.Name); err == nil {
		handler.ServiceElementChanged(elem, fresh)
		if fresh.Version > o.versions[fresh.Key()] {
			o.versions[fresh.Key()] = fresh.Version
		}
	}

	watch := threshold.NewWatch(sla.ID, sla.ThresholdValues(), o.config.Watch)
	watch.AddListener(handler)

	smp := sampler.New(sampler.Config{
		Metric:   collector.MetricName(elem.OperationalStringName, elem.Name, sla.ID),
		Interval: o.config.SampleInterval,
		Source:   o.config.Source,
		Recorder: watch,
		Detail:   fmt.Sprintf("instance-%d", instance.InstanceID),
		Fields: logrus.Fields{
			"opstring": elem.OperationalStringName,
			"service":  elem.Name,
			"instance": instance.InstanceID,
		},
	})

	a := &attachment{
		instance: instance,
		slaID:    sla.ID,
		watch:    watch,
		sampler:  smp,
		handler:  handler,
	}
	o.attached[instance.ServiceBeanID] = append(o.attached[instance.ServiceBeanID], a)
	smp.Start()

	entry.Infof("Policy handler attached: %s", handler.ID())
}

// release tears an attachment down without waiting on the caller's
// goroutine, which may be the attachment's own sampler.
func (o *Orchestrator) release(a *attachment, reason string) {
	a.handler.Close()
	o.publisher.HandlerDetached(a.instance.ElementKey(), a.handler.ID(), reason)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		a.sampler.Stop()
	}()
}

func slasEqual(a, b []models.SLA) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
