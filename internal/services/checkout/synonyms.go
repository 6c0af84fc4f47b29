package checkout

import "strings"

// Concept is a canonical meaning shared by differently named form fields and
// user-supplied info keys
type Concept string

const (
	ConceptName     Concept = "name"
	ConceptAddress  Concept = "address"
	ConceptEmail    Concept = "email"
	ConceptPhone    Concept = "phone"
	ConceptZip      Concept = "zip"
	ConceptCity     Concept = "city"
	ConceptState    Concept = "state"
	ConceptCountry  Concept = "country"
	ConceptPayment  Concept = "payment"
	ConceptShipping Concept = "shipping"
	ConceptQuantity Concept = "quantity"
	ConceptAge      Concept = "age"
	ConceptTerms    Concept = "terms"
	ConceptUnknown  Concept = ""
)

// synonymTable maps each canonical concept to its fixed token list in the
// target site's languages (English and Portuguese). Tokens are compared
// lowercased with separators stripped.
var synonymTable = map[Concept][]string{
	ConceptName: {
		"name", "fullname", "firstname", "lastname", "customername",
		"nome", "nomecompleto", "sobrenome",
	},
	ConceptAddress: {
		"address", "street", "addressline", "number", "complement", "neighborhood",
		"endereco", "rua", "logradouro", "numero", "complemento", "bairro",
	},
	ConceptEmail: {
		"email", "emailaddress", "mail",
	},
	ConceptPhone: {
		"phone", "telephone", "tel", "mobile", "cellphone",
		"telefone", "celular", "fone",
	},
	ConceptZip: {
		"zip", "zipcode", "postalcode", "postcode",
		"cep", "codigopostal",
	},
	ConceptCity: {
		"city", "town",
		"cidade", "municipio",
	},
	ConceptState: {
		"state", "province", "region",
		"estado", "uf",
	},
	ConceptCountry: {
		"country",
		"pais",
	},
	ConceptPayment: {
		"payment", "card", "cardnumber", "credit", "creditcard", "installments",
		"pagamento", "cartao", "credito", "parcelas",
	},
	ConceptShipping: {
		"shipping", "delivery", "freight",
		"entrega", "frete", "envio",
	},
	ConceptQuantity: {
		"quantity", "qty", "amount",
		"quantidade", "qtd",
	},
	ConceptAge: {
		"age",
		"idade",
	},
	ConceptTerms: {
		"terms", "termsandconditions", "agree", "accept",
		"termos", "aceite",
	},
}

// normalizeToken lowercases and strips the separators that vary between
// naming conventions, so "zip_code", "zipCode" and "zip-code" all collide
func normalizeToken(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch r {
		case '_', '-', ' ', '.', '[', ']':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// conceptOf resolves a field name or info key to its canonical concept.
// Exact token match is tried first, then substring containment for compound
// names like "billing_zip_code".
func conceptOf(key string) Concept {
	normalized := normalizeToken(key)
	if normalized == "" {
		return ConceptUnknown
	}

	for concept, tokens := range synonymTable {
		for _, token := range tokens {
			if normalized == token {
				return concept
			}
		}
	}
	for concept, tokens := range synonymTable {
		for _, token := range tokens {
			if len(token) >= 3 && strings.Contains(normalized, token) {
				return concept
			}
		}
	}
	return ConceptUnknown
}

// firstToken returns the first word of a label, used as a secondary match
// key before the synonym tables
func firstToken(label string) string {
	fields := strings.Fields(strings.TrimSpace(label))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
