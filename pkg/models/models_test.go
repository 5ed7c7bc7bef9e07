package models_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OldStager01/elastic-orchestrator/pkg/models"
	"github.com/OldStager01/elastic-orchestrator/pkg/validation"
)

func TestCalculable_EqualComparesIDOnly(t *testing.T) {
	when := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	base := models.NewCalculableAt("load", 42, when)

	tests := []struct {
		name     string
		other    models.Calculable
		expected bool
	}{
		{
			name:     "identical",
			other:    models.NewCalculableAt("load", 42, when),
			expected: true,
		},
		{
			// samples with the same ID are equal even when value and
			// timestamp differ; collections deduplicate on this
			name:     "same id different value and time",
			other:    models.NewCalculableAt("load", 99, when.Add(time.Hour)),
			expected: true,
		},
		{
			name:     "same id different detail",
			other:    base.WithDetail("instance-7"),
			expected: true,
		},
		{
			name:     "different id same value and time",
			other:    models.NewCalculableAt("latency", 42, when),
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, base.Equal(tt.other))
			assert.Equal(t, tt.expected, tt.other.Equal(base))
		})
	}
}

func TestCalculable_Builders(t *testing.T) {
	when := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	calc := models.NewCalculableAt("load", 12.5, when)
	detailed := calc.WithDetail("instance-1")

	assert.Equal(t, "instance-1", detailed.Detail)
	assert.Empty(t, calc.Detail, "WithDetail returns a copy")
	assert.Equal(t, when, detailed.When)
	assert.Equal(t, "load=12.5000@2026-01-02T03:04:05Z", calc.String())

	assert.True(t, models.Calculable{}.IsZero())
	assert.False(t, calc.IsZero())
	assert.False(t, models.NewCalculable("load", 1).When.IsZero())
}

func TestThresholdValues_Validate(t *testing.T) {
	tests := []struct {
		name    string
		tv      models.ThresholdValues
		wantErr bool
	}{
		{"valid", models.NewThresholdValues(10, 80), false},
		{"equal bounds", models.NewThresholdValues(50, 50), false},
		{"low above high", models.NewThresholdValues(80, 10), true},
		{
			name: "current bounds inverted",
			tv: models.ThresholdValues{
				LowThreshold: 10, HighThreshold: 80,
				CurrentLowThreshold: 90, CurrentHighThreshold: 80,
			},
			wantErr: true,
		},
		{
			name:    "negative step",
			tv:      models.ThresholdValues{LowThreshold: 10, HighThreshold: 80, CurrentLowThreshold: 10, CurrentHighThreshold: 80, Step: -1},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tv.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestThresholdValues_CurrentBounds(t *testing.T) {
	tv := models.NewThresholdValues(10, 80)
	tv.CurrentHighThreshold = 90
	tv.CurrentLowThreshold = 5

	assert.False(t, tv.AboveHigh(85), "compares against the current bound")
	assert.True(t, tv.AboveHigh(91))
	assert.True(t, tv.BelowLow(4))
	assert.True(t, tv.Within(5))
	assert.True(t, tv.Within(90))

	tv.Reset()
	assert.Equal(t, 10.0, tv.CurrentLowThreshold)
	assert.Equal(t, 80.0, tv.CurrentHighThreshold)

	tv.SetThresholds(20, 70)
	assert.Equal(t, models.NewThresholdValues(20, 70), tv)
}

func validSLA() models.SLA {
	return models.SLA{ID: "load", LowThreshold: 10, HighThreshold: 80, MinServices: 1, MaxServices: 5}
}

func TestSLA_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(s *models.SLA)
		wantErr bool
	}{
		{"valid", func(s *models.SLA) {}, false},
		{"undefined max", func(s *models.SLA) { s.MaxServices = models.UndefinedServices }, false},
		{"zero min", func(s *models.SLA) { s.MinServices = 0 }, false},
		{"min equals max", func(s *models.SLA) { s.MinServices = 5 }, false},
		{"empty id", func(s *models.SLA) { s.ID = "" }, true},
		{"id with slash", func(s *models.SLA) { s.ID = "cpu/load" }, true},
		{"low above high", func(s *models.SLA) { s.LowThreshold = 90 }, true},
		{"negative min", func(s *models.SLA) { s.MinServices = -1 }, true},
		{"max below min", func(s *models.SLA) { s.MinServices, s.MaxServices = 3, 2 }, true},
		{"negative max other than undefined", func(s *models.SLA) { s.MaxServices = -2 }, true},
		{"negative upper dampening", func(s *models.SLA) { s.UpperThresholdDampeningTime = -time.Second }, true},
		{"negative lower dampening", func(s *models.SLA) { s.LowerThresholdDampeningTime = -time.Second }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sla := validSLA()
			tt.modify(&sla)
			err := sla.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrInvalidSLA)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSLA_Bounds(t *testing.T) {
	sla := validSLA()
	sla.Step = 5
	assert.True(t, sla.HasMaxServices())

	tv := sla.ThresholdValues()
	assert.Equal(t, 10.0, tv.CurrentLowThreshold)
	assert.Equal(t, 80.0, tv.CurrentHighThreshold)
	assert.Equal(t, 5.0, tv.Step)

	sla.MaxServices = models.UndefinedServices
	assert.False(t, sla.HasMaxServices())
}

func TestServiceElement_Validate(t *testing.T) {
	tests := []struct {
		name    string
		elem    models.ServiceElement
		wantErr error
	}{
		{
			name: "planned within bounds",
			elem: models.ServiceElement{Name: "api", Planned: 3, SLAs: []models.SLA{validSLA()}},
		},
		{
			name: "planned at max",
			elem: models.ServiceElement{Name: "api", Planned: 5, SLAs: []models.SLA{validSLA()}},
		},
		{
			name: "unbounded max",
			elem: models.ServiceElement{Name: "api", Planned: 50, SLAs: []models.SLA{{
				ID: "load", LowThreshold: 10, HighThreshold: 80, MinServices: 1, MaxServices: models.UndefinedServices,
			}}},
		},
		{
			name: "no slas",
			elem: models.ServiceElement{Name: "db", Planned: 0, ProvisionType: models.ProvisionExternal},
		},
		{
			name:    "planned above max",
			elem:    models.ServiceElement{Name: "api", Planned: 6, SLAs: []models.SLA{validSLA()}},
			wantErr: models.ErrInvalidServiceElement,
		},
		{
			name:    "planned below min",
			elem:    models.ServiceElement{Name: "api", Planned: 0, SLAs: []models.SLA{validSLA()}},
			wantErr: models.ErrInvalidServiceElement,
		},
		{
			name:    "negative planned",
			elem:    models.ServiceElement{Name: "api", Planned: -1},
			wantErr: models.ErrInvalidServiceElement,
		},
		{
			name:    "unknown provision type",
			elem:    models.ServiceElement{Name: "api", ProvisionType: "elastic"},
			wantErr: models.ErrInvalidServiceElement,
		},
		{
			name:    "duplicate sla",
			elem:    models.ServiceElement{Name: "api", Planned: 1, SLAs: []models.SLA{validSLA(), validSLA()}},
			wantErr: models.ErrInvalidServiceElement,
		},
		{
			name:    "invalid sla",
			elem:    models.ServiceElement{Name: "api", Planned: 1, SLAs: []models.SLA{{ID: "load", LowThreshold: 9, HighThreshold: 1}}},
			wantErr: models.ErrInvalidSLA,
		},
		{
			name:    "empty name",
			elem:    models.ServiceElement{Planned: 1},
			wantErr: models.ErrInvalidServiceElement,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.elem.Validate()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestServiceElement_CopyAndLookup(t *testing.T) {
	elem := models.ServiceElement{Name: "api", OperationalStringName: "shop", Planned: 2, SLAs: []models.SLA{validSLA()}}

	cp := elem.Copy()
	cp.SLAs[0].HighThreshold = 99
	assert.Equal(t, 80.0, elem.SLAs[0].HighThreshold, "copy shares no slices")

	sla, ok := elem.SLA("load")
	require.True(t, ok)
	assert.Equal(t, validSLA(), sla)
	_, ok = elem.SLA("latency")
	assert.False(t, ok)

	assert.Equal(t, "shop/api", elem.Key())
	assert.True(t, elem.IsDynamic(), "empty provision type is dynamic")
	assert.False(t, models.ServiceElement{ProvisionType: models.ProvisionFixed}.IsDynamic())

	instance := models.NewServiceBeanInstance(elem, 7, "10.0.0.1")
	assert.Equal(t, elem.Key(), instance.ElementKey())
	assert.Equal(t, int64(7), instance.InstanceID)
	assert.NotEmpty(t, instance.ServiceBeanID)
}

func nestedShop() *models.OperationalString {
	return &models.OperationalString{
		Name:     "shop",
		Services: []models.ServiceElement{{Name: "api", Planned: 1}},
		Nested: []*models.OperationalString{
			{
				Name:     "backend",
				Services: []models.ServiceElement{{Name: "api", Planned: 1}, {Name: "db", Planned: 1}},
				Nested: []*models.OperationalString{
					{Name: "storage", Services: []models.ServiceElement{{Name: "blob", Planned: 1}}},
				},
			},
			nil,
		},
	}
}

func TestOperationalString_AllElementsStampsNames(t *testing.T) {
	ops := nestedShop()

	var keys []string
	for _, e := range ops.AllElements() {
		keys = append(keys, e.Key())
	}
	assert.Equal(t, []string{"shop/api", "backend/api", "backend/db", "storage/blob"}, keys)
	assert.Empty(t, ops.Services[0].OperationalStringName, "declared elements are not modified")

	elem, ok := ops.Element("blob")
	require.True(t, ok)
	assert.Equal(t, "storage", elem.OperationalStringName)
	_, ok = ops.Element("cache")
	assert.False(t, ok)
}

func TestOperationalString_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(o *models.OperationalString)
		wantErr string
	}{
		{name: "valid nested", modify: func(o *models.OperationalString) {}},
		{
			name:    "empty name",
			modify:  func(o *models.OperationalString) { o.Name = "" },
			wantErr: "name cannot be empty",
		},
		{
			name:    "empty nested name",
			modify:  func(o *models.OperationalString) { o.Nested[0].Name = "" },
			wantErr: "name cannot be empty",
		},
		{
			name:    "nested name repeats root",
			modify:  func(o *models.OperationalString) { o.Nested[0].Nested[0].Name = "shop" },
			wantErr: `duplicate operational string "shop"`,
		},
		{
			name: "duplicate service in one opstring",
			modify: func(o *models.OperationalString) {
				o.Services = append(o.Services, models.ServiceElement{Name: "api", Planned: 1})
			},
			wantErr: "duplicate service shop/api",
		},
		{
			name: "invalid element",
			modify: func(o *models.OperationalString) {
				o.Nested[0].Services[1].Planned = -1
			},
			wantErr: "planned must not be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ops := nestedShop()
			tt.modify(ops)
			err := ops.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestOperationalString_ValidateRejectsPathNames(t *testing.T) {
	ops := nestedShop()
	ops.Name = "shop/eu"
	assert.ErrorIs(t, ops.Validate(), validation.ErrInvalidInput)
}

func TestEvent_Builders(t *testing.T) {
	event := models.NewEvent(models.EventTypeAlert, "shop/api", "slow").
		WithSeverity(models.SeverityWarning).
		WithData(map[string]int{"p99": 300}).
		WithTraceID("trace-1")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, models.EventTypeAlert, event.Type)
	assert.Equal(t, models.SeverityWarning, event.Severity)
	assert.Equal(t, "shop/api", event.Service)
	assert.Equal(t, map[string]int{"p99": 300}, event.Data)
	assert.Equal(t, "trace-1", event.TraceID)
	assert.False(t, event.Timestamp.IsZero())

	assert.NotEqual(t, event.ID, models.NewEvent(models.EventTypeAlert, "", "").ID)
}
