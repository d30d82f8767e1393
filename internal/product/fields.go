package product

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/quake-catalog-loader/internal/domain"
)

// TimeFormat is the QuakeML time representation, always UTC.
const TimeFormat = "2006-01-02T15:04:05.000000Z"

// Field is a named event attribute that a template can reference.
type Field int

const (
	FieldID Field = iota
	FieldCode
	FieldTime
	FieldLat
	FieldLon
	FieldDepth
	FieldDepthError
	FieldHorizontalError
	FieldGap
	FieldNumStations
	FieldEvalStatus
	FieldEvalMode
	FieldSource
	FieldContributor
	FieldAgency
	FieldAuthor
	FieldMethod
	FieldVersion
	FieldCreationTime

	FieldMag
	FieldMagType
	FieldMagStatus
	FieldMagMode
	FieldMagSource
	FieldMagID

	FieldMrr
	FieldMtt
	FieldMpp
	FieldMrt
	FieldMrp
	FieldMtp
	FieldMoment
	FieldTAzimuth
	FieldTPlunge
	FieldTValue
	FieldNAzimuth
	FieldNPlunge
	FieldNValue
	FieldPAzimuth
	FieldPPlunge
	FieldPValue
	FieldNP1Strike
	FieldNP1Dip
	FieldNP1Rake
	FieldNP2Strike
	FieldNP2Dip
	FieldNP2Rake

	FieldTriggerID
	FieldTriggerTime
	FieldTriggerLat
	FieldTriggerLon
	FieldTriggerDepth
	FieldTriggerSource

	// FieldPreferredMagnitude resolves after every magnitude is rendered.
	FieldPreferredMagnitude

	fieldCount
)

// scope is the data a field resolves against.
type scope struct {
	ev  *domain.Event
	mag *domain.Magnitude
	now time.Time
}

type fieldSpec struct {
	name    string
	resolve func(s *scope) (string, bool)
}

var fields = [fieldCount]fieldSpec{
	FieldID:              {"ID", func(s *scope) (string, bool) { return str(s.ev.ID) }},
	FieldCode:            {"CODE", func(s *scope) (string, bool) { return str(eventCode(s.ev.ID, s.ev.Source)) }},
	FieldTime:            {"TIME", func(s *scope) (string, bool) { return timestamp(s.ev.Time) }},
	FieldLat:             {"LAT", func(s *scope) (string, bool) { return f4(s.ev.Lat), true }},
	FieldLon:             {"LON", func(s *scope) (string, bool) { return f4(s.ev.Lon), true }},
	FieldDepth:           {"DEPTH", func(s *scope) (string, bool) { return f1(s.ev.Depth), true }},
	FieldDepthError:      {"DEPTHERROR", func(s *scope) (string, bool) { return optional(s.ev.DepthError, f1) }},
	FieldHorizontalError: {"HORIZONTALERROR", func(s *scope) (string, bool) { return optional(s.ev.HorizontalError, f1) }},
	FieldGap:             {"GAP", func(s *scope) (string, bool) { return optional(s.ev.Gap, f1) }},
	FieldNumStations:     {"NUMSTATIONS", func(s *scope) (string, bool) { return optional(s.ev.NumStations, strconv.Itoa) }},
	FieldEvalStatus:      {"EVALSTATUS", func(s *scope) (string, bool) { return str(s.ev.EvalStatus) }},
	FieldEvalMode:        {"EVALMODE", func(s *scope) (string, bool) { return str(s.ev.EvalMode) }},
	FieldSource:          {"SOURCE", func(s *scope) (string, bool) { return str(s.ev.Source) }},
	FieldContributor:     {"CONTRIBUTOR", func(s *scope) (string, bool) { return str(s.ev.Contributor) }},
	FieldAgency:          {"AGENCY", func(s *scope) (string, bool) { return str(s.ev.Agency) }},
	FieldAuthor:          {"AUTHOR", func(s *scope) (string, bool) { return str(s.ev.Author) }},
	FieldMethod:          {"METHOD", func(s *scope) (string, bool) { return str(s.ev.Method) }},
	FieldVersion:         {"VERSION", func(s *scope) (string, bool) { return strconv.FormatInt(s.now.Unix(), 10), true }},
	FieldCreationTime:    {"CTIME", func(s *scope) (string, bool) { return timestamp(s.now) }},

	FieldMag:       {"MAG", func(s *scope) (string, bool) { return magnitude(s, func(m *domain.Magnitude) (string, bool) { return f1(m.Value), true }) }},
	FieldMagType:   {"MAGTYPE", func(s *scope) (string, bool) { return magnitude(s, func(m *domain.Magnitude) (string, bool) { return str(m.Scale) }) }},
	FieldMagStatus: {"MAGSTATUS", func(s *scope) (string, bool) { return magnitude(s, func(m *domain.Magnitude) (string, bool) { return str(m.EvalStatus) }) }},
	FieldMagMode:   {"MAGMODE", func(s *scope) (string, bool) { return magnitude(s, func(m *domain.Magnitude) (string, bool) { return str(m.EvalMode) }) }},
	FieldMagSource: {"MAGSOURCE", func(s *scope) (string, bool) { return magnitude(s, func(m *domain.Magnitude) (string, bool) { return str(m.Source) }) }},
	FieldMagID:     {"MAGID", func(s *scope) (string, bool) { return magnitude(s, func(m *domain.Magnitude) (string, bool) { return magnitudeKey(s.ev, m) }) }},

	FieldMrr:    {"MRR", func(s *scope) (string, bool) { return component(s, func(t *domain.MomentTensor) float64 { return t.Mrr }) }},
	FieldMtt:    {"MTT", func(s *scope) (string, bool) { return component(s, func(t *domain.MomentTensor) float64 { return t.Mtt }) }},
	FieldMpp:    {"MPP", func(s *scope) (string, bool) { return component(s, func(t *domain.MomentTensor) float64 { return t.Mpp }) }},
	FieldMrt:    {"MRT", func(s *scope) (string, bool) { return component(s, func(t *domain.MomentTensor) float64 { return t.Mrt }) }},
	FieldMrp:    {"MRP", func(s *scope) (string, bool) { return component(s, func(t *domain.MomentTensor) float64 { return t.Mrp }) }},
	FieldMtp:    {"MTP", func(s *scope) (string, bool) { return component(s, func(t *domain.MomentTensor) float64 { return t.Mtp }) }},
	FieldMoment: {"MOMENT", func(s *scope) (string, bool) { return optional(s.ev.ScalarMoment, e2) }},

	FieldTAzimuth: {"TAZIMUTH", func(s *scope) (string, bool) { return axis(s, func(a *domain.PrincipalAxes) string { return angle(a.T.Azimuth) }) }},
	FieldTPlunge:  {"TPLUNGE", func(s *scope) (string, bool) { return axis(s, func(a *domain.PrincipalAxes) string { return angle(a.T.Plunge) }) }},
	FieldTValue:   {"TVALUE", func(s *scope) (string, bool) { return axis(s, func(a *domain.PrincipalAxes) string { return e1(a.T.Value) }) }},
	FieldNAzimuth: {"NAZIMUTH", func(s *scope) (string, bool) { return axis(s, func(a *domain.PrincipalAxes) string { return angle(a.N.Azimuth) }) }},
	FieldNPlunge:  {"NPLUNGE", func(s *scope) (string, bool) { return axis(s, func(a *domain.PrincipalAxes) string { return angle(a.N.Plunge) }) }},
	FieldNValue:   {"NVALUE", func(s *scope) (string, bool) { return axis(s, func(a *domain.PrincipalAxes) string { return e1(a.N.Value) }) }},
	FieldPAzimuth: {"PAZIMUTH", func(s *scope) (string, bool) { return axis(s, func(a *domain.PrincipalAxes) string { return angle(a.P.Azimuth) }) }},
	FieldPPlunge:  {"PPLUNGE", func(s *scope) (string, bool) { return axis(s, func(a *domain.PrincipalAxes) string { return angle(a.P.Plunge) }) }},
	FieldPValue:   {"PVALUE", func(s *scope) (string, bool) { return axis(s, func(a *domain.PrincipalAxes) string { return e1(a.P.Value) }) }},

	FieldNP1Strike: {"NP1STRIKE", func(s *scope) (string, bool) { return plane(s, 1, func(p domain.NodalPlane) float64 { return p.Strike }) }},
	FieldNP1Dip:    {"NP1DIP", func(s *scope) (string, bool) { return plane(s, 1, func(p domain.NodalPlane) float64 { return p.Dip }) }},
	FieldNP1Rake:   {"NP1RAKE", func(s *scope) (string, bool) { return plane(s, 1, func(p domain.NodalPlane) float64 { return p.Rake }) }},
	FieldNP2Strike: {"NP2STRIKE", func(s *scope) (string, bool) { return plane(s, 2, func(p domain.NodalPlane) float64 { return p.Strike }) }},
	FieldNP2Dip:    {"NP2DIP", func(s *scope) (string, bool) { return plane(s, 2, func(p domain.NodalPlane) float64 { return p.Dip }) }},
	FieldNP2Rake:   {"NP2RAKE", func(s *scope) (string, bool) { return plane(s, 2, func(p domain.NodalPlane) float64 { return p.Rake }) }},

	FieldTriggerID:    {"TRIGGERID", func(s *scope) (string, bool) { return trigger(s, func(c *domain.CandidateOrigin) (string, bool) { return str(c.ID) }) }},
	FieldTriggerTime:  {"TRIGGERTIME", func(s *scope) (string, bool) { return trigger(s, func(c *domain.CandidateOrigin) (string, bool) { return timestamp(c.Time) }) }},
	FieldTriggerLat:   {"TRIGGERLAT", func(s *scope) (string, bool) { return trigger(s, func(c *domain.CandidateOrigin) (string, bool) { return f4(c.Lat), true }) }},
	FieldTriggerLon:   {"TRIGGERLON", func(s *scope) (string, bool) { return trigger(s, func(c *domain.CandidateOrigin) (string, bool) { return f4(c.Lon), true }) }},
	FieldTriggerDepth: {"TRIGGERDEPTH", func(s *scope) (string, bool) { return trigger(s, func(c *domain.CandidateOrigin) (string, bool) { return f1(c.Depth), true }) }},
	FieldTriggerSource: {"TRIGGERSOURCE", func(s *scope) (string, bool) {
		return trigger(s, func(*domain.CandidateOrigin) (string, bool) { return str(s.ev.TriggerSource) })
	}},

	FieldPreferredMagnitude: {"PREFERREDMAGNITUDE", func(*scope) (string, bool) { return "", false }},
}

// String returns the placeholder name of the field.
func (f Field) String() string {
	if f < 0 || f >= fieldCount {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fields[f].name
}

func (f Field) resolve(s *scope) (string, bool) {
	return fields[f].resolve(s)
}

// eventCode strips the catalog prefix from an id: "us2000abcd" with source "us" is "2000abcd".
func eventCode(id, source string) string {
	if source != "" && len(id) > len(source) && strings.EqualFold(id[:len(source)], source) {
		return id[len(source):]
	}
	return id
}

func str(v string) (string, bool) { return v, v != "" }

func f4(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }

func f1(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) }

func e3(v float64) string { return fmt.Sprintf("%.3e", v) }

func e2(v float64) string { return fmt.Sprintf("%.2e", v) }

func e1(v float64) string { return fmt.Sprintf("%.1e", v) }

// angle truncates toward zero.
func angle(v float64) string { return strconv.Itoa(int(v)) }

func timestamp(t time.Time) (string, bool) {
	if t.IsZero() {
		return "", false
	}
	return t.UTC().Format(TimeFormat), true
}

func optional[T any](p *T, format func(T) string) (string, bool) {
	if p == nil {
		return "", false
	}
	return format(*p), true
}

func magnitude(s *scope, fn func(*domain.Magnitude) (string, bool)) (string, bool) {
	if s.mag == nil {
		return "", false
	}
	return fn(s.mag)
}

// magnitudeKey is the scale, qualified by the source when another estimate
// of the event shares that scale.
func magnitudeKey(ev *domain.Event, m *domain.Magnitude) (string, bool) {
	if m.Scale == "" {
		return "", false
	}
	shared := 0
	for i := range ev.Magnitudes {
		if strings.EqualFold(ev.Magnitudes[i].Scale, m.Scale) {
			shared++
		}
	}
	if shared > 1 && m.Source != "" {
		return m.Scale + "/" + m.Source, true
	}
	return m.Scale, true
}

func component(s *scope, fn func(*domain.MomentTensor) float64) (string, bool) {
	if s.ev.Tensor == nil {
		return "", false
	}
	return e3(fn(s.ev.Tensor)), true
}

func axis(s *scope, fn func(*domain.PrincipalAxes) string) (string, bool) {
	if s.ev.Axes == nil {
		return "", false
	}
	return fn(s.ev.Axes), true
}

func plane(s *scope, which int, fn func(domain.NodalPlane) float64) (string, bool) {
	if s.ev.Planes == nil {
		return "", false
	}
	if which == 1 {
		return angle(fn(s.ev.Planes.NP1)), true
	}
	if s.ev.Planes.NP2 == nil {
		return "", false
	}
	return angle(fn(*s.ev.Planes.NP2)), true
}

func trigger(s *scope, fn func(*domain.CandidateOrigin) (string, bool)) (string, bool) {
	if s.ev.Association == nil {
		return "", false
	}
	return fn(s.ev.Association)
}
