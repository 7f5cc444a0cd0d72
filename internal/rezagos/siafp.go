// Package rezagos implements the correction-task queue: the SIAFP response
// catalog, the completion workflow and its pages.
package rezagos

// Severity classifies who must act on a SIAFP response code.
type Severity string

const (
	// SeverityExternal (A) requires managing the case with third parties.
	SeverityExternal Severity = "A"
	// SeverityInternal (B) is operational work inside the AFP.
	SeverityInternal Severity = "B"
	// SeveritySystem (S) flags a technical or logic error.
	SeveritySystem Severity = "S"
	// SeverityWaiting (W) sits in an automatic process.
	SeverityWaiting Severity = "W"
	// SeverityMixed requires manual review of the sub-case.
	SeverityMixed Severity = "MIXTA"
)

// Label returns the display label used across the queue.
func (s Severity) Label() string {
	switch s {
	case SeverityExternal:
		return "Externa (A)"
	case SeverityInternal:
		return "Interna (B)"
	case SeveritySystem:
		return "Sistema (S)"
	case SeverityWaiting:
		return "Espera (W)"
	default:
		return "Mixta"
	}
}

// RequiresEmail reports whether completing a task of this severity first
// routes through the notification email confirmation step.
func (s Severity) RequiresEmail() bool { return s == SeverityExternal }

// EmailTemplate is the prefilled notification for external-severity codes.
type EmailTemplate struct {
	Subject string
	Body    string
}

// CatalogEntry describes one SIAFP response code.
type CatalogEntry struct {
	Codigo      string
	Significado string
	Accion      string
	Severidad   Severity
	Template    *EmailTemplate
}

var catalog = map[string]CatalogEntry{
	"086": {
		Significado: "Aporte ya registrado como pagado (posible duplicado)",
		Accion:      "Revisar sistema interno. No enviar Novedad 004.",
		Severidad:   SeveritySystem,
	},
	"023": {
		Significado: "Conflicto de identidad: Mismo número, diferente tipo doc",
		Accion:      "Validar error digitación. Corregir y enviar Nov 127.",
		Severidad:   SeverityInternal,
	},
	"077": {
		Significado: "Inconsistencia entre nombres reportados y certificados",
		Accion:      "Analizar coincidencia. Corregir y enviar Nov 127.",
		Severidad:   SeverityInternal,
	},
	"074": {
		Significado: "Excluido RPM por edad",
		Accion:      "Devolución de aportes y anular (Nov 127).",
		Severidad:   SeverityInternal,
	},
	"075": {
		Significado: "Excluido RAIS por edad",
		Accion:      "Devolución de aportes y anular (Nov 127).",
		Severidad:   SeverityInternal,
	},
	"079": {
		Significado: "Excluido por aporte independiente sin vinculación",
		Accion:      "Devolución de aportes y anular (Nov 127).",
		Severidad:   SeverityInternal,
	},
	"076": {
		Significado: "Fecha de pago posterior al fallecimiento",
		Accion:      "Devolución de aportes y anular (Nov 127).",
		Severidad:   SeverityInternal,
	},
	"011": {
		Significado: "Afiliado no existe en BD SIAFP ni Entidad Certificadora",
		Accion:      "Verificar internamente. Esperar notificación.",
		Severidad:   SeverityExternal,
		Template: &EmailTemplate{
			Subject: "Requerimiento Validación Afiliado - Error SIAFP 011",
			Body: "Estimados,\n\nSe ha detectado en nuestro sistema de validación que el afiliado no existe en la base de datos de SIAFP ni en la Entidad Certificadora (Error 011).\n\n" +
				"Le solicitamos amablemente verificar internamente el estado de afiliación y quedar a la espera de la notificación oficial de vinculación para proceder con el procesamiento del aporte.",
		},
	},
	"081": {
		Significado: "ID no existe en Registraduría ni SIAFP",
		Accion:      "Verificar digitación. Contactar aportante.",
		Severidad:   SeverityExternal,
		Template: &EmailTemplate{
			Subject: "Inconsistencia en Identificación - Error SIAFP 081",
			Body: "Estimado Aportante,\n\nHemos detectado que el número de identificación reportado no se encuentra registrado en la base de datos de la Registraduría Nacional ni en SIAFP (Error 081).\n\n" +
				"Por favor, verifique la digitación del documento y confírmenos los datos correctos a la mayor brevedad posible para regularizar el estado del aporte.",
		},
	},
	"022": {
		Significado: "Afiliado cambió de documento",
		Accion:      "Actualizar BD interna y enviar Nov 127.",
		Severidad:   SeverityInternal,
	},
	"117": {
		Significado: "Aporte corresponde a la AFP (Auto-match)",
		Accion:      "Verificar apertura cuenta, acreditar y anular rezago.",
		Severidad:   SeverityInternal,
	},
	"227": {
		Significado: "Inconsistencias historial vinculaciones",
		Accion:      "Esperar reconstrucción historial (Tarea 072).",
		Severidad:   SeverityWaiting,
	},
	"021": {
		Significado: "Afiliado no vigente en ninguna AFP",
		Accion:      "Esperar notificación vínculo.",
		Severidad:   SeverityWaiting,
	},
	"231": {
		Significado: "Posible OERPM (Régimen Prima Media)",
		Accion:      "Validar entidad y gestionar traslado.",
		Severidad:   SeverityExternal,
		Template: &EmailTemplate{
			Subject: "Gestión de Traslado OERPM - Error SIAFP 231",
			Body: "Estimados,\n\nSe ha identificado un posible caso de OERPM (Régimen de Prima Media) para el afiliado en cuestión (Error 231).\n\n" +
				"Agradecemos validar con la entidad correspondiente y, de ser procedente, gestionar el traslado de los recursos para dar cumplimiento a la normativa vigente.",
		},
	},
	"128": {
		Significado: "Periodo con mora (Cálculo Actuarial)",
		Accion:      "Gestionar pago cálculo actuarial.",
		Severidad:   SeverityExternal,
		Template: &EmailTemplate{
			Subject: "Gestión Pago Cálculo Actuarial - Error SIAFP 128",
			Body: "Estimados,\n\nSe ha detectado un periodo con mora que requiere la generación de un cálculo actuarial para su correcta acreditación (Error 128).\n\n" +
				"Es necesario gestionar el pago del cálculo actuarial correspondiente para regularizar la situación pensional del afiliado.",
		},
	},
	"129": {
		Significado: "Empleador sin clase de aportante",
		Accion:      "Actualizar clase aportante (ASEMPOMISOSNV).",
		Severidad:   SeverityInternal,
	},
	"226": {
		Significado: "Indicio afiliación otra entidad RPM",
		Accion:      "Verificar estatus pensionado.",
		Severidad:   SeverityExternal,
		Template: &EmailTemplate{
			Subject: "Verificación Estatus Pensionado - Error SIAFP 226",
			Body: "Estimados,\n\nExiste un indicio de afiliación en una entidad del Régimen de Prima Media para este afiliado (Error 226).\n\n" +
				"Solicitamos verificar el estatus pensional del afiliado en las bases de datos externas para determinar la procedencia del aporte reportado.",
		},
	},
	"009": {
		Significado: "Aporte identificado otra entidad",
		Accion:      "Pagar a entidad indicada.",
		Severidad:   SeverityInternal,
	},
	"887": {
		Significado: "En proceso reconstrucción historial",
		Accion:      "Esperar conclusión proceso.",
		Severidad:   SeverityWaiting,
	},
	"889": {
		Significado: "En proceso modificación ID",
		Accion:      "Esperar conclusión trámite.",
		Severidad:   SeverityWaiting,
	},
	"335": {
		Significado: "Inconsistencia Colpensiones vs SIAFP",
		Accion:      "Esperar resolución.",
		Severidad:   SeverityWaiting,
	},
	"886": {
		Significado: "Falla conexión Colpensiones",
		Accion:      "Esperar restablecimiento.",
		Severidad:   SeverityWaiting,
	},
	"900": {
		Significado: "Pendiente confirmar anulación/retracto",
		Accion:      "Verificar Novedad 165.",
		Severidad:   SeverityExternal,
		Template: &EmailTemplate{
			Subject: "Confirmación Anulación/Retracto - Error SIAFP 900",
			Body: "Estimados,\n\nEl registro se encuentra en estado pendiente de confirmar anulación o retracto (Error 900).\n\n" +
				"Se requiere verificar la Novedad 165 en el sistema para confirmar el estado final de este movimiento y proceder con la gestión contable.",
		},
	},
	"093": {
		Significado: "Nombres no coinciden (Requiere Tarea)",
		Accion:      "Ver sub-caso",
		Severidad:   SeverityMixed,
	},
}

// Lookup resolves a SIAFP response code. Unknown codes fall back to the
// mixed class so they always route through manual review.
func Lookup(code string) CatalogEntry {
	if entry, ok := catalog[code]; ok {
		entry.Codigo = code
		return entry
	}
	return CatalogEntry{
		Codigo:      code,
		Significado: "Código SIAFP no catalogado",
		Accion:      "Revisión manual",
		Severidad:   SeverityMixed,
	}
}

// PlanoPagoCode is the response code whose tasks feed the payment flat
// file section.
const PlanoPagoCode = "009"
