package address

type kind int

const (
	cardinal kind = iota
	ordinal
)

type numeral struct {
	value  int
	kind   kind
	suffix string
}

// lexicon maps lower-cased number words (ё folded to е) to their value.
var lexicon = buildLexicon()

var ruOrdinalStems = []struct {
	stem  string
	value int
	masc  string
}{
	{"перв", 1, "ый"},
	{"втор", 2, "ой"},
	{"четверт", 4, "ый"},
	{"пят", 5, "ый"},
	{"шест", 6, "ой"},
	{"седьм", 7, "ой"},
	{"восьм", 8, "ой"},
	{"девят", 9, "ый"},
	{"десят", 10, "ый"},
	{"одиннадцат", 11, "ый"},
	{"двенадцат", 12, "ый"},
	{"тринадцат", 13, "ый"},
	{"четырнадцат", 14, "ый"},
	{"пятнадцат", 15, "ый"},
	{"шестнадцат", 16, "ый"},
	{"семнадцат", 17, "ый"},
	{"восемнадцат", 18, "ый"},
	{"девятнадцат", 19, "ый"},
	{"двадцат", 20, "ый"},
	{"тридцат", 30, "ый"},
	{"сороков", 40, "ой"},
	{"пятидесят", 50, "ый"},
	{"шестидесят", 60, "ый"},
	{"семидесят", 70, "ый"},
	{"восьмидесят", 80, "ый"},
	{"девяност", 90, "ый"},
	{"сот", 100, "ый"},
}

var ruCardinals = map[string]int{
	"один": 1, "одна": 1, "одно": 1, "два": 2, "две": 2, "три": 3,
	"четыре": 4, "пять": 5, "шесть": 6, "семь": 7, "восемь": 8, "девять": 9,
	"десять": 10, "одиннадцать": 11, "двенадцать": 12, "тринадцать": 13,
	"четырнадцать": 14, "пятнадцать": 15, "шестнадцать": 16, "семнадцать": 17,
	"восемнадцать": 18, "девятнадцать": 19,
	"двадцать": 20, "тридцать": 30, "сорок": 40, "пятьдесят": 50,
	"шестьдесят": 60, "семьдесят": 70, "восемьдесят": 80, "девяносто": 90,
	"сто": 100,
}

var enCardinals = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
	"eleven": 11, "twelve": 12, "thirteen": 13, "fourteen": 14, "fifteen": 15,
	"sixteen": 16, "seventeen": 17, "eighteen": 18, "nineteen": 19,
	"twenty": 20, "thirty": 30, "forty": 40, "fifty": 50,
	"sixty": 60, "seventy": 70, "eighty": 80, "ninety": 90,
	"hundred": 100,
}

var enOrdinals = map[string]int{
	"first": 1, "second": 2, "third": 3, "fourth": 4, "fifth": 5,
	"sixth": 6, "seventh": 7, "eighth": 8, "ninth": 9, "tenth": 10,
	"eleventh": 11, "twelfth": 12, "thirteenth": 13, "fourteenth": 14, "fifteenth": 15,
	"sixteenth": 16, "seventeenth": 17, "eighteenth": 18, "nineteenth": 19,
	"twentieth": 20, "thirtieth": 30, "fortieth": 40, "fiftieth": 50,
	"sixtieth": 60, "seventieth": 70, "eightieth": 80, "ninetieth": 90,
	"hundredth": 100,
}

func buildLexicon() map[string]numeral {
	m := make(map[string]numeral, 256)
	for _, s := range ruOrdinalStems {
		m[s.stem+"ая"] = numeral{value: s.value, kind: ordinal, suffix: "я"}
		m[s.stem+s.masc] = numeral{value: s.value, kind: ordinal, suffix: "й"}
		m[s.stem+"ое"] = numeral{value: s.value, kind: ordinal, suffix: "е"}
	}
	m["третья"] = numeral{value: 3, kind: ordinal, suffix: "я"}
	m["третий"] = numeral{value: 3, kind: ordinal, suffix: "й"}
	m["третье"] = numeral{value: 3, kind: ordinal, suffix: "е"}

	for w, v := range ruCardinals {
		m[w] = numeral{value: v, kind: cardinal}
	}
	for w, v := range enCardinals {
		m[w] = numeral{value: v, kind: cardinal}
	}
	// English has no grammatical gender; streets ("улица") are feminine.
	for w, v := range enOrdinals {
		m[w] = numeral{value: v, kind: ordinal, suffix: "я"}
	}
	return m
}
