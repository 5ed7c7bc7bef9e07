package provision

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/OldStager01/elastic-orchestrator/internal/logger"
	"github.com/OldStager01/elastic-orchestrator/pkg/models"
)

// Callbacks run synchronously outside the manager lock, in event order.
type Callbacks struct {
	OnInstanceAdded   func(instance models.ServiceBeanInstance)
	OnInstanceRemoved func(instance models.ServiceBeanInstance)
	OnElementChanged  func(prior, current models.ServiceElement)
}

type Config struct {
	ProvisionDelay time.Duration
	MaxRetries     int
	RetryDelay     time.Duration
	Launcher       ProcessLauncher
	Ledger         Ledger
	Callbacks      Callbacks
}

// Manager is an in-process OperationalStringManager. It owns the planned
// counts of deployed elements, queues provision requests and tracks the
// instances they produce.
type Manager struct {
	config         Config
	opstrings      map[string]*models.OperationalString
	elements       map[string]*elementState
	instances      map[string]*instanceState
	nextInstanceID int64
	nextListenerID int
	decommissioned bool
	ctx            context.Context
	cancel         context.CancelFunc
	wg             sync.WaitGroup
	mu             sync.Mutex
}

type elementState struct {
	elem      models.ServiceElement
	owner     string
	instances []string
	pending   []*request
	listeners []elementListener
}

type elementListener struct {
	id       int
	listener ElementChangeListener
}

type request struct {
	id        string
	key       string
	listener  ProvisionListener
	ctx       context.Context
	cancel    context.CancelFunc
	launching bool
	done      bool
}

type instanceState struct {
	instance models.ServiceBeanInstance
	handle   Handle
}

func NewManager(cfg Config) *Manager {
	if cfg.Launcher == nil {
		cfg.Launcher = NewSimulatedLauncher(SimulatedLauncherConfig{})
	}
	if cfg.Ledger == nil {
		cfg.Ledger = NewMemoryLedger()
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config:    cfg,
		opstrings: make(map[string]*models.OperationalString),
		elements:  make(map[string]*elementState),
		instances: make(map[string]*instanceState),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Deploy registers an op string and provisions the planned instances of
// every dynamic or fixed element.
func (m *Manager) Deploy(ctx context.Context, os *models.OperationalString) error {
	if os == nil {
		return fmt.Errorf("%w: nil operational string", ErrUnknownOpString)
	}
	if err := os.Validate(); err != nil {
		return err
	}
	elems := os.AllElements()

	m.mu.Lock()
	if m.decommissioned {
		m.mu.Unlock()
		return ErrManagerDecommissioned
	}
	if _, exists := m.opstrings[os.Name]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrOpStringExists, os.Name)
	}
	for _, e := range elems {
		if _, exists := m.elements[e.Key()]; exists {
			m.mu.Unlock()
			return fmt.Errorf("%w: service %s is already deployed", ErrOpStringExists, e.Key())
		}
	}
	m.opstrings[os.Name] = os
	for _, e := range elems {
		e.Version = 1
		m.elements[e.Key()] = &elementState{elem: e, owner: os.Name}
	}
	m.mu.Unlock()

	logger.WithField("opstring", os.Name).Infof("Deployed operational string with %d services", len(elems))

	for _, e := range elems {
		if e.ProvisionType == models.ProvisionExternal {
			continue
		}
		for i := 0; i < e.Planned; i++ {
			if err := m.enqueue(ctx, e.Key(), nopListener{}, false); err != nil {
				return fmt.Errorf("provision %s: %w", e.Key(), err)
			}
		}
	}
	return nil
}

// Undeploy removes an op string, cancelling its pending requests and
// terminating its instances.
func (m *Manager) Undeploy(ctx context.Context, name string) error {
	m.mu.Lock()
	if _, ok := m.opstrings[name]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownOpString, name)
	}

	type cancelled struct {
		req  *request
		elem models.ServiceElement
	}
	var (
		reqs      []cancelled
		instances []*instanceState
	)
	for key, st := range m.elements {
		if st.owner != name {
			continue
		}
		for _, r := range st.pending {
			if !r.done {
				r.done = true
				reqs = append(reqs, cancelled{req: r, elem: st.elem.Copy()})
			}
		}
		for _, id := range st.instances {
			if is, ok := m.instances[id]; ok {
				instances = append(instances, is)
				delete(m.instances, id)
			}
		}
		delete(m.elements, key)
	}
	delete(m.opstrings, name)
	m.mu.Unlock()

	for _, c := range reqs {
		c.req.cancel()
		m.forget(ctx, c.req)
		c.req.listener.Failed(c.elem, false)
	}
	for _, is := range instances {
		m.terminate(ctx, is)
		if m.config.Callbacks.OnInstanceRemoved != nil {
			m.config.Callbacks.OnInstanceRemoved(is.instance)
		}
	}

	logger.WithField("opstring", name).Infof("Undeployed operational string: %d pending cancelled, %d instances terminated",
		len(reqs), len(instances))
	return nil
}

func (m *Manager) GetServiceBeanInstances(ctx context.Context, elem models.ServiceElement) ([]models.ServiceBeanInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.decommissioned {
		return nil, ErrManagerDecommissioned
	}
	st, ok := m.elements[elem.Key()]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownElement, elem.Key())
	}
	out := make([]models.ServiceBeanInstance, 0, len(st.instances))
	for _, id := range st.instances {
		if is, ok := m.instances[id]; ok {
			out = append(out, is.instance)
		}
	}
	return out, nil
}

func (m *Manager) GetPendingCount(ctx context.Context, elem models.ServiceElement) (int, error) {
	m.mu.Lock()
	if m.decommissioned {
		m.mu.Unlock()
		return 0, ErrManagerDecommissioned
	}
	if _, ok := m.elements[elem.Key()]; !ok {
		m.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrUnknownElement, elem.Key())
	}
	m.mu.Unlock()

	return m.config.Ledger.Count(ctx, elem.Key())
}

func (m *Manager) Increment(ctx context.Context, elem models.ServiceElement, listener ProvisionListener) error {
	if listener == nil {
		listener = nopListener{}
	}
	return m.enqueue(ctx, elem.Key(), listener, true)
}

func (m *Manager) Decrement(ctx context.Context, instance models.ServiceBeanInstance, destroy bool) error {
	m.mu.Lock()
	if m.decommissioned {
		m.mu.Unlock()
		return ErrManagerDecommissioned
	}
	is, ok := m.instances[instance.ServiceBeanID]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownInstance, instance.ServiceBeanID)
	}
	delete(m.instances, instance.ServiceBeanID)

	var (
		prior, current models.ServiceElement
		listeners      []ElementChangeListener
		changed        bool
	)
	if st, ok := m.elements[is.instance.ElementKey()]; ok {
		st.removeInstance(instance.ServiceBeanID)
		prior = st.elem.Copy()
		if st.elem.Planned > 0 {
			st.elem.Planned--
		}
		st.elem.Version++
		current = st.elem.Copy()
		listeners = st.changeListeners()
		changed = true
	}
	m.mu.Unlock()

	logger.WithService(is.instance.OperationalStringName, is.instance.ElementName).
		Infof("Decrementing instance %d (%s), destroy=%v", is.instance.InstanceID, shortID(is.instance.ServiceBeanID), destroy)

	if destroy {
		m.terminate(ctx, is)
	}
	if m.config.Callbacks.OnInstanceRemoved != nil {
		m.config.Callbacks.OnInstanceRemoved(is.instance)
	}
	if changed {
		m.fireElementChanged(listeners, prior, current)
	}
	return nil
}

func (m *Manager) Trim(ctx context.Context, elem models.ServiceElement, count int) (int, error) {
	if count <= 0 {
		return 0, nil
	}

	m.mu.Lock()
	if m.decommissioned {
		m.mu.Unlock()
		return 0, ErrManagerDecommissioned
	}
	st, ok := m.elements[elem.Key()]
	if !ok {
		m.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", ErrUnknownElement, elem.Key())
	}

	// Newest requests first; requests already launching cannot be trimmed.
	var trimmed []*request
	for i := len(st.pending) - 1; i >= 0 && len(trimmed) < count; i-- {
		r := st.pending[i]
		if r.launching || r.done {
			continue
		}
		r.done = true
		trimmed = append(trimmed, r)
	}
	if len(trimmed) == 0 {
		m.mu.Unlock()
		return 0, nil
	}
	for _, r := range trimmed {
		st.removePending(r)
	}
	prior := st.elem.Copy()
	st.elem.Planned -= len(trimmed)
	if st.elem.Planned < 0 {
		st.elem.Planned = 0
	}
	st.elem.Version++
	current := st.elem.Copy()
	listeners := st.changeListeners()
	m.mu.Unlock()

	for _, r := range trimmed {
		r.cancel()
		m.forget(ctx, r)
	}

	logger.WithService(current.OperationalStringName, current.Name).
		Infof("Trimmed %d pending requests, planned %d -> %d", len(trimmed), prior.Planned, current.Planned)

	m.fireElementChanged(listeners, prior, current)
	for _, r := range trimmed {
		r.listener.Failed(current, false)
	}
	return len(trimmed), nil
}

// SetPlanned moves an element to a new planned count, provisioning or
// removing instances as needed.
func (m *Manager) SetPlanned(ctx context.Context, opstring, name string, planned int) error {
	if planned < 0 {
		return fmt.Errorf("%w: planned must not be negative", models.ErrInvalidServiceElement)
	}

	elem, err := m.Element(opstring, name)
	if err != nil {
		return err
	}
	for _, sla := range elem.SLAs {
		if sla.HasMaxServices() && planned > sla.MaxServices {
			return fmt.Errorf("%w: planned %d exceeds sla %s max %d",
				models.ErrInvalidServiceElement, planned, sla.ID, sla.MaxServices)
		}
	}

	delta := planned - elem.Planned
	switch {
	case delta > 0:
		for i := 0; i < delta; i++ {
			if err := m.enqueue(ctx, elem.Key(), nopListener{}, true); err != nil {
				return err
			}
		}
	case delta < 0:
		excess := -delta
		trimmed, err := m.Trim(ctx, elem, excess)
		if err != nil {
			return err
		}
		excess -= trimmed
		if excess == 0 {
			return nil
		}
		instances, err := m.GetServiceBeanInstances(ctx, elem)
		if err != nil {
			return err
		}
		for i := len(instances) - 1; i >= 0 && excess > 0; i-- {
			if err := m.Decrement(ctx, instances[i], true); err != nil {
				return err
			}
			excess--
		}
	}
	return nil
}

// UpdateSLA replaces the SLA with the same ID on an element, or adds it.
func (m *Manager) UpdateSLA(opstring, name string, sla models.SLA) (models.ServiceElement, error) {
	if err := sla.Validate(); err != nil {
		return models.ServiceElement{}, err
	}

	m.mu.Lock()
	st, ok := m.elements[models.ElementKey(opstring, name)]
	if !ok {
		m.mu.Unlock()
		return models.ServiceElement{}, fmt.Errorf("%w: %s", ErrUnknownElement, models.ElementKey(opstring, name))
	}
	prior := st.elem.Copy()
	next := st.elem.Copy()
	replaced := false
	for i := range next.SLAs {
		if next.SLAs[i].ID == sla.ID {
			next.SLAs[i] = sla
			replaced = true
		}
	}
	if !replaced {
		next.SLAs = append(next.SLAs, sla)
	}
	if err := next.Validate(); err != nil {
		m.mu.Unlock()
		return models.ServiceElement{}, err
	}
	next.Version++
	st.elem = next
	current := next.Copy()
	listeners := st.changeListeners()
	m.mu.Unlock()

	m.fireElementChanged(listeners, prior, current)
	return current, nil
}

func (m *Manager) Element(opstring, name string) (models.ServiceElement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.elements[models.ElementKey(opstring, name)]
	if !ok {
		return models.ServiceElement{}, fmt.Errorf("%w: %s", ErrUnknownElement, models.ElementKey(opstring, name))
	}
	return st.elem.Copy(), nil
}

// OperationalStrings returns the deployed op strings with current planned
// counts.
func (m *Manager) OperationalStrings() []*models.OperationalString {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.OperationalString, 0, len(m.opstrings))
	for _, os := range m.opstrings {
		out = append(out, m.currentView(os))
	}
	return out
}

func (m *Manager) OperationalString(name string) (*models.OperationalString, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	os, ok := m.opstrings[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOpString, name)
	}
	return m.currentView(os), nil
}

// ServiceBeanManager returns the per-instance view for a live instance.
func (m *Manager) ServiceBeanManager(serviceBeanID string) (ServiceBeanManager, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	is, ok := m.instances[serviceBeanID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstance, serviceBeanID)
	}
	return &beanManager{manager: m, instance: is.instance}, nil
}

// Decommission makes every later call fail with ErrManagerDecommissioned.
// Pending requests are reported as failed.
func (m *Manager) Decommission() {
	m.mu.Lock()
	if m.decommissioned {
		m.mu.Unlock()
		return
	}
	m.decommissioned = true

	type cancelled struct {
		req  *request
		elem models.ServiceElement
	}
	var reqs []cancelled
	for _, st := range m.elements {
		for _, r := range st.pending {
			if !r.done {
				r.done = true
				reqs = append(reqs, cancelled{req: r, elem: st.elem.Copy()})
			}
		}
		st.pending = nil
	}
	m.mu.Unlock()

	for _, c := range reqs {
		c.req.cancel()
		m.forget(context.Background(), c.req)
		c.req.listener.Failed(c.elem, false)
	}
	logger.Warnf("Operational string manager decommissioned, %d pending requests cancelled", len(reqs))
}

func (m *Manager) IsDecommissioned() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.decommissioned
}

// Close stops in-flight provisioning and waits for it to finish.
func (m *Manager) Close() error {
	m.cancel()
	m.wg.Wait()
	return nil
}

func (m *Manager) enqueue(ctx context.Context, key string, listener ProvisionListener, raisePlanned bool) error {
	reqID := models.NewUUID()
	added, err := m.config.Ledger.Add(ctx, key, reqID)
	if err != nil {
		return err
	}
	if !added {
		return fmt.Errorf("%w: %s", ErrDuplicateRequest, reqID)
	}

	m.mu.Lock()
	if m.decommissioned {
		m.mu.Unlock()
		m.config.Ledger.Remove(ctx, key, reqID)
		return ErrManagerDecommissioned
	}
	st, ok := m.elements[key]
	if !ok {
		m.mu.Unlock()
		m.config.Ledger.Remove(ctx, key, reqID)
		return fmt.Errorf("%w: %s", ErrUnknownElement, key)
	}

	var (
		prior, current models.ServiceElement
		listeners      []ElementChangeListener
	)
	if raisePlanned {
		prior = st.elem.Copy()
		st.elem.Planned++
		st.elem.Version++
		current = st.elem.Copy()
		listeners = st.changeListeners()
	}

	rctx, cancel := context.WithCancel(m.ctx)
	req := &request{
		id:       reqID,
		key:      key,
		listener: listener,
		ctx:      rctx,
		cancel:   cancel,
	}
	st.pending = append(st.pending, req)
	m.wg.Add(1)
	m.mu.Unlock()

	logger.WithField("service", key).Debugf("Queued provision request %s", shortID(reqID))

	if raisePlanned {
		m.fireElementChanged(listeners, prior, current)
	}
	go m.provision(req)
	return nil
}

func (m *Manager) provision(req *request) {
	defer m.wg.Done()

	delay := m.config.ProvisionDelay
	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			delay = m.config.RetryDelay
		}
		if delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-req.ctx.Done():
				timer.Stop()
				m.failRequest(req, req.ctx.Err())
				return
			case <-timer.C:
			}
		}

		m.mu.Lock()
		st, ok := m.elements[req.key]
		if req.done || !ok {
			m.mu.Unlock()
			return
		}
		req.launching = true
		elem := st.elem.Copy()
		m.nextInstanceID++
		instanceID := m.nextInstanceID
		m.mu.Unlock()

		handle, err := m.config.Launcher.Launch(req.ctx, LaunchSpec{
			RequestID:  req.id,
			InstanceID: instanceID,
			Element:    elem,
		})
		if err == nil {
			m.completeRequest(req, handle, instanceID)
			return
		}

		if attempt < m.config.MaxRetries && req.ctx.Err() == nil {
			logger.WithService(elem.OperationalStringName, elem.Name).
				Warnf("Provision request %s failed, resubmitting (attempt %d/%d): %v",
					shortID(req.id), attempt+1, m.config.MaxRetries, err)
			m.mu.Lock()
			req.launching = false
			m.mu.Unlock()
			req.listener.Failed(elem, true)
			continue
		}
		m.failRequest(req, err)
		return
	}
}

func (m *Manager) completeRequest(req *request, handle Handle, instanceID int64) {
	m.mu.Lock()
	st, ok := m.elements[req.key]
	if req.done || !ok || m.decommissioned {
		m.mu.Unlock()
		m.terminate(context.Background(), &instanceState{handle: handle})
		return
	}
	req.done = true
	st.removePending(req)
	instance := models.NewServiceBeanInstance(st.elem, instanceID, handle.Host())
	m.instances[instance.ServiceBeanID] = &instanceState{instance: instance, handle: handle}
	st.instances = append(st.instances, instance.ServiceBeanID)
	m.mu.Unlock()

	req.cancel()
	m.forget(context.Background(), req)

	logger.WithService(instance.OperationalStringName, instance.ElementName).
		Infof("Instance %d provisioned (%s)", instance.InstanceID, shortID(instance.ServiceBeanID))

	if m.config.Callbacks.OnInstanceAdded != nil {
		m.config.Callbacks.OnInstanceAdded(instance)
	}
	req.listener.Succeeded(instance)
}

// failRequest drops a request that will not be retried. The element's
// planned count is lowered so it keeps matching instances plus pending.
func (m *Manager) failRequest(req *request, cause error) {
	m.mu.Lock()
	if req.done {
		m.mu.Unlock()
		return
	}
	req.done = true

	var (
		elem, prior models.ServiceElement
		listeners   []ElementChangeListener
		changed     bool
	)
	if st, ok := m.elements[req.key]; ok {
		st.removePending(req)
		prior = st.elem.Copy()
		if st.elem.Planned > 0 {
			st.elem.Planned--
			st.elem.Version++
			changed = true
		}
		elem = st.elem.Copy()
		listeners = st.changeListeners()
	}
	m.mu.Unlock()

	req.cancel()
	m.forget(context.Background(), req)

	logger.WithField("service", req.key).Warnf("Provision request %s failed: %v", shortID(req.id), cause)

	if changed {
		m.fireElementChanged(listeners, prior, elem)
	}
	req.listener.Failed(elem, false)
}

func (m *Manager) forget(ctx context.Context, req *request) {
	if _, err := m.config.Ledger.Remove(ctx, req.key, req.id); err != nil {
		logger.WithField("service", req.key).Warnf("Failed to remove request %s from ledger: %v", shortID(req.id), err)
	}
}

func (m *Manager) terminate(ctx context.Context, is *instanceState) {
	if is.handle == nil {
		return
	}
	if err := is.handle.Terminate(ctx); err != nil {
		logger.WithField("handle", is.handle.ID()).Warnf("Failed to terminate process: %v", err)
	}
}

func (m *Manager) addElementListener(key string, l ElementChangeListener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.elements[key]
	if !ok {
		return func() {}
	}
	m.nextListenerID++
	id := m.nextListenerID
	st.listeners = append(st.listeners, elementListener{id: id, listener: l})

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		st, ok := m.elements[key]
		if !ok {
			return
		}
		for i, el := range st.listeners {
			if el.id == id {
				st.listeners = append(st.listeners[:i], st.listeners[i+1:]...)
				return
			}
		}
	}
}

func (m *Manager) fireElementChanged(listeners []ElementChangeListener, prior, current models.ServiceElement) {
	for _, l := range listeners {
		l.ServiceElementChanged(prior, current)
	}
	if m.config.Callbacks.OnElementChanged != nil {
		m.config.Callbacks.OnElementChanged(prior, current)
	}
}

func (m *Manager) currentView(os *models.OperationalString) *models.OperationalString {
	view := &models.OperationalString{Name: os.Name}
	for _, e := range os.Services {
		if st, ok := m.elements[models.ElementKey(os.Name, e.Name)]; ok {
			view.Services = append(view.Services, st.elem.Copy())
		}
	}
	for _, nested := range os.Nested {
		if nested != nil {
			view.Nested = append(view.Nested, m.currentView(nested))
		}
	}
	return view
}

func (st *elementState) removePending(r *request) {
	for i, p := range st.pending {
		if p == r {
			st.pending = append(st.pending[:i], st.pending[i+1:]...)
			return
		}
	}
}

func (st *elementState) removeInstance(id string) {
	for i, existing := range st.instances {
		if existing == id {
			st.instances = append(st.instances[:i], st.instances[i+1:]...)
			return
		}
	}
}

func (st *elementState) changeListeners() []ElementChangeListener {
	out := make([]ElementChangeListener, len(st.listeners))
	for i, el := range st.listeners {
		out[i] = el.listener
	}
	return out
}

type beanManager struct {
	manager  *Manager
	instance models.ServiceBeanInstance
}

func (b *beanManager) ServiceBeanID() string {
	return b.instance.ServiceBeanID
}

func (b *beanManager) Instance() models.ServiceBeanInstance {
	return b.instance
}

func (b *beanManager) AddElementChangeListener(l ElementChangeListener) func() {
	return b.manager.addElementListener(b.instance.ElementKey(), l)
}
