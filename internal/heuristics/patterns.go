package heuristics

// Patterns holds the locale-specific tables the extractor is built from.
// Extending a table changes what is recognized without touching control flow.
type Patterns struct {
	// BrandTokens are known issuer names, uppercase ASCII.
	BrandTokens []string

	// LegalSuffixes are regular-expression fragments for legal-entity
	// suffixes, matched against uppercased text.
	LegalSuffixes []string

	// GenericKeywords mark a line as probably naming a company.
	// BrandTokens are added to this set by the extractor.
	GenericKeywords []string

	// Gazetteer lists known city names in their canonical spelling. Matching
	// ignores case and accents. Earlier entries win.
	Gazetteer []string

	// RequestWords are capitalized words that open a request subject and are
	// never part of a city name ("Solicitud", "Recurso", ...).
	RequestWords []string

	// CurrencyWords follow an amount ("pesos", "usd", ...). Lowercase, accents allowed.
	CurrencyWords []string

	// AmountLabels precede an amount ("monto", "total", ...).
	AmountLabels []string

	// CityLabels precede a labeled city field ("ciudad:", "lugar:", ...).
	CityLabels []string
}

// DefaultPatterns returns the tables used in production.
func DefaultPatterns() Patterns {
	return Patterns{
		BrandTokens: []string{
			"PEMEX",
			"COTEMAR",
			"OCEANOGRAFIA",
			"DIAVAZ",
			"HALLIBURTON",
			"SCHLUMBERGER",
			"WEATHERFORD",
			"BAKER HUGHES",
		},
		LegalSuffixes: []string{
			`S\.?\s?A\.?\s+DE\s+C\.?\s?V\.?`,
			`S\.?\s?DE\s+R\.?\s?L\.?(?:\s+DE\s+C\.?\s?V\.?)?`,
			`S\.?\s?A\.?\s?P\.?\s?I\.?`,
			`S\.A\.`,
			`SA`,
			`CORP\.?`,
			`INC\.?`,
			`LLC\.?`,
			`EMPRESARIAL`,
		},
		GenericKeywords: []string{
			"EMPRESA",
			"COMPAÑIA",
			"COMPAÑÍA",
			"COMPANIA",
			"SERVICIOS",
			"CORPORATIVO",
			"OFFSHORE",
		},
		Gazetteer: []string{
			"Ciudad del Carmen",
			"Ciudad de México",
			"CDMX",
			"Dos Bocas",
			"Poza Rica",
			"Salina Cruz",
			"Villahermosa",
			"Tabasco",
			"Campeche",
			"Paraíso",
			"Comalcalco",
			"Cárdenas",
			"Macuspana",
			"Frontera",
			"Coatzacoalcos",
			"Minatitlán",
			"Veracruz",
			"Tuxpan",
			"Tampico",
			"Altamira",
			"Reynosa",
			"Matamoros",
			"Monterrey",
			"Mérida",
			"Cancún",
			"Oaxaca",
			"Chiapas",
		},
		RequestWords: []string{
			"Solicitud",
			"Recurso",
			"Recursos",
			"Pedido",
			"Orden",
			"Entrega",
			"Servicio",
			"Urgente",
			"Cotización",
			"Cotizacion",
		},
		CurrencyWords: []string{
			"pesos",
			"peso",
			"mxn",
			"usd",
			"dolares",
			"dólares",
			"dlls",
			"dls",
		},
		AmountLabels: []string{
			"monto",
			"cantidad",
			"total",
			"valor",
		},
		CityLabels: []string{
			"ciudad",
			"city",
			"lugar",
			"ubicación",
			"ubicacion",
		},
	}
}
