// Package pila provides the typed client and data model for the remote
// PILA validation and reconciliation API. Every validation rule (R04-R08,
// matriz, financial cross-check) is computed server-side; this package only
// transports the opaque outcomes.
package pila

import (
	"encoding/json"
	"fmt"
)

// Validation categories as keyed in the remote result maps. CategoryLog is
// special: it reads the match_log field rather than a resultado_* key.
const (
	CategoryR04    = "resultado_r04"
	CategoryMatriz = "resultado_matriz"
	CategoryLog    = "LOG"
	CategoryR05    = "resultado_r05"
	CategoryR06    = "resultado_r06"
	CategoryR07    = "resultado_r07"
	CategoryR08    = "resultado_r08"
)

// FlexString decodes a JSON value that may arrive as a string or a number.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	if len(data) == 0 || string(data) == "null" {
		*f = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// Detail is a single error/alert detail line. The remote API mixes plain
// strings and structured objects in the same array; objects are kept as
// compact JSON text.
type Detail string

// UnmarshalJSON implements json.Unmarshaler.
func (d *Detail) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = Detail(s)
		return nil
	}
	*d = Detail(data)
	return nil
}

// RuleMeta carries the numeric cross-check and detail payload of one
// normative rule outcome. All fields are optional on the wire.
type RuleMeta struct {
	TotalDeclaradoT3     float64  `json:"total_declarado_t3"`
	SumatoriaCalculadaT2 float64  `json:"sumatoria_calculada_t2"`
	Diferencia           float64  `json:"diferencia"`
	TotalErrores         int      `json:"total_errores"`
	TotalAlertas         int      `json:"total_alertas"`
	ErroresDetalle       []Detail `json:"errores_detalle"`
	AlertasDetalle       []Detail `json:"alertas_detalle"`
}

// IssueCount returns whichever of the error/alert counters is populated.
func (m RuleMeta) IssueCount() int {
	if m.TotalErrores > 0 {
		return m.TotalErrores
	}
	return m.TotalAlertas
}

// Details returns whichever of the detail lists is populated.
func (m RuleMeta) Details() []Detail {
	if len(m.ErroresDetalle) > 0 {
		return m.ErroresDetalle
	}
	return m.AlertasDetalle
}

// RuleResult is one pass/fail outcome of a normative validation rule.
// A nil *RuleResult means the rule was not evaluated for the document.
type RuleResult struct {
	Valido  bool     `json:"valido"`
	Mensaje string   `json:"mensaje"`
	Meta    RuleMeta `json:"meta"`
}

// OK reports whether the rule blocks overall validity. An absent rule is
// vacuously valid; use this accessor instead of chained nil checks.
func (r *RuleResult) OK() bool { return r == nil || r.Valido }

// Message returns the rule message or empty when the rule is absent.
func (r *RuleResult) Message() string {
	if r == nil {
		return ""
	}
	return r.Mensaje
}

// MatchMeta describes the financial log entry matched against a planilla.
type MatchMeta struct {
	IDLog       FlexString     `json:"id_log"`
	ValorLog    float64        `json:"valor_log"`
	ValorPila   float64        `json:"valor_pila"`
	Diferencia  float64        `json:"diferencia"`
	RegistroLog map[string]any `json:"registro_log_completo"`
}

// Field returns a string rendering of one key of the full log record.
func (m MatchMeta) Field(key string) string {
	v, ok := m.RegistroLog[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// MatchResult is the financial cross-check outcome for one document.
// A nil *MatchResult means no cross-check was performed.
type MatchResult struct {
	Valido bool      `json:"valido"`
	Meta   MatchMeta `json:"meta"`
}

// OK reports whether the cross-check blocks overall validity.
func (m *MatchResult) OK() bool { return m == nil || m.Valido }

// AssociatedMatch is the associated-document lookup outcome.
type AssociatedMatch struct {
	Valido bool `json:"valido"`
	Meta   struct {
		NumPlanillaAsociada FlexString `json:"num_planilla_asociada"`
	} `json:"meta"`
}

// RawParserOutput is the parsed document structure echoed back by the
// remote API: a header block, repeating affiliate rows, and grouped totals.
type RawParserOutput struct {
	Tipo1 map[string]any            `json:"tipo1"`
	Tipo2 []map[string]any          `json:"tipo2"`
	Tipo3 map[string]map[string]any `json:"tipo3"`
}

// ValidationRecord is the merged per-document record, keyed by the original
// filename within one processing batch.
type ValidationRecord struct {
	Filename         string           `json:"-"`
	InfoPlanilla     map[string]any   `json:"info_planilla"`
	R04              *RuleResult      `json:"resultado_r04"`
	Matriz           *RuleResult      `json:"resultado_matriz"`
	R05              *RuleResult      `json:"resultado_r05"`
	R06              *RuleResult      `json:"resultado_r06"`
	R07              *RuleResult      `json:"resultado_r07"`
	R08              *RuleResult      `json:"resultado_r08"`
	MatchLog         *MatchResult     `json:"match_log"`
	PlanillaAsociada *AssociatedMatch `json:"planilla_asociada_encontrada"`
	RawParser        *RawParserOutput `json:"raw_parser_output"`
}

// Radicacion returns the declaration number from the header metadata.
func (r ValidationRecord) Radicacion() string {
	v, ok := r.InfoPlanilla["num_radicacion"]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// Rule returns the normative rule outcome for a resultado_* category key,
// or nil for unknown keys and for CategoryLog.
func (r ValidationRecord) Rule(category string) *RuleResult {
	switch category {
	case CategoryR04:
		return r.R04
	case CategoryMatriz:
		return r.Matriz
	case CategoryR05:
		return r.R05
	case CategoryR06:
		return r.R06
	case CategoryR07:
		return r.R07
	case CategoryR08:
		return r.R08
	}
	return nil
}

// Outcome reports, for any category including CategoryLog, whether the
// outcome is present on the record and whether it passed.
func (r ValidationRecord) Outcome(category string) (present, valid bool) {
	if category == CategoryLog {
		if r.MatchLog == nil {
			return false, true
		}
		return true, r.MatchLog.Valido
	}
	rule := r.Rule(category)
	if rule == nil {
		return false, true
	}
	return true, rule.Valido
}

// MatchEntry is one element of the /log-match-bd response map.
type MatchEntry struct {
	MatchLog *MatchResult `json:"match_log"`
}

// MissingUser is one affiliate the v2 processing flow could not place,
// annotated with its SIAFP classification.
type MissingUser struct {
	TipoDocumento    string `json:"tipo_documento"`
	NumDocumento     string `json:"num_documento"`
	Nombre           string `json:"nombre"`
	SiafpCodigo      string `json:"siafp_codigo"`
	SiafpSeveridad   string `json:"siafp_severidad"`
	SiafpSignificado string `json:"siafp_significado"`
	SiafpAccion      string `json:"siafp_accion"`
	EnPuy            string `json:"en_puy"`
	EnSiafp          string `json:"en_siafp"`
	ArchivoOrigen    string `json:"archivo_origen"`
}

// ProcessV2Response is the envelope returned by /procesar-planilla-2.
type ProcessV2Response struct {
	Results        map[string]ValidationRecord `json:"results"`
	MissingUsers   []MissingUser               `json:"missing_users"`
	TotalAcreditar float64                     `json:"total_acreditar"`
	TotalRezagos   float64                     `json:"total_rezagos"`
}

// Extract is one uploaded bank statement record set.
type Extract struct {
	ID            int64  `json:"id"`
	Nombre        string `json:"nombre"`
	Descripcion   string `json:"descripcion"`
	FechaCreacion string `json:"fechaCreacion"`
}

// LogRow is one financial log entry. The column set is owned by the remote
// service, so rows stay schemaless and are rendered by key.
type LogRow map[string]any

// LogPage is one page of the financial log query.
type LogPage struct {
	Data         []LogRow `json:"data"`
	TotalRecords int      `json:"total_records"`
	TotalPages   int      `json:"total_pages"`
}

// PlanillaRef is the document summary embedded in downstream records.
type PlanillaRef struct {
	RazonSocialAportante string  `json:"razonSocialAportante"`
	NumDocAportante      string  `json:"numDocAportante"`
	Filename             string  `json:"filename"`
	TotalCotizacion      float64 `json:"totalCotizacion"`
}

// RezagoDetalles is the SIAFP classification attached to a correction task.
type RezagoDetalles struct {
	Codigo      string     `json:"codigo"`
	Severidad   string     `json:"severidad"`
	Significado string     `json:"significado"`
	Accion      string     `json:"accion"`
	Val1        FlexString `json:"val1"`
	Val2        FlexString `json:"val2"`
}

// Rezago is one unresolved discrepancy/correction task.
type Rezago struct {
	ID          int64          `json:"id"`
	CodigoError string         `json:"codigoError"`
	Mensaje     string         `json:"mensaje"`
	Estado      string         `json:"estado"`
	Detalles    RezagoDetalles `json:"detalles"`
	Planilla    PlanillaRef    `json:"planilla"`
}

// RezagoPage is one page of the correction-task queue.
type RezagoPage struct {
	Data       []Rezago `json:"data"`
	Total      int      `json:"total"`
	TotalPages int      `json:"total_pages"`
}

// ExtractRecordRef is the bank-side half of a reconciliation match.
type ExtractRecordRef struct {
	Valor float64 `json:"valor"`
	Fecha string  `json:"fecha"`
}

// Conciliacion is one planilla-to-bank reconciliation match.
type Conciliacion struct {
	ID               int64            `json:"id"`
	TipoMatch        string           `json:"tipoMatch"`
	Planilla         PlanillaRef      `json:"planilla"`
	RegistroExtracto ExtractRecordRef `json:"registroExtracto"`
}

// ConcilPage is one page of reconciliation matches plus the running
// accreditation total for the selected period.
type ConcilPage struct {
	Data       []Conciliacion `json:"data"`
	Total      int            `json:"total"`
	TotalPages int            `json:"total_pages"`
	TotAcred   float64        `json:"tot_acred"`
}

// Saldo is one AFP fund balance snapshot.
type Saldo struct {
	Fondo            string  `json:"fondo"`
	Tipo             string  `json:"tipo"`
	SaldoOperacional float64 `json:"saldo_operacional"`
	SaldoRezagos     float64 `json:"saldo_rezagos"`
}

// PilaConciliacion is the reconciliation status attached to a processed pila.
type PilaConciliacion struct {
	Acreditada bool `json:"acreditada"`
}

// PilaUser identifies the affiliate of a processed pila.
type PilaUser struct {
	Nombre string `json:"nombre"`
}

// Pila is one processed declaration awaiting accreditation.
type Pila struct {
	ID              int64             `json:"id"`
	HashPila        string            `json:"hash_pila"`
	Nombre          string            `json:"nombre"`
	User            *PilaUser         `json:"user"`
	UserTipoDoc     string            `json:"userTipoDoc"`
	UserNumDoc      string            `json:"userNumDoc"`
	TotalCotizacion float64           `json:"total_cotizacion"`
	FechaCreacion   string            `json:"fechaCreacion"`
	Conciliacion    *PilaConciliacion `json:"conciliacion"`
}

// Pending reports whether the pila is reconciled but not yet accredited.
func (p Pila) Pending() bool {
	return p.Conciliacion != nil && !p.Conciliacion.Acreditada
}
