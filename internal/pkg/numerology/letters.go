package numerology

// cyrillicValues maps lowercase Cyrillic letters to their numeric values.
var cyrillicValues = map[rune]int{
	'а': 1, 'б': 2, 'в': 3, 'г': 4, 'д': 5, 'е': 6, 'ё': 6, 'ж': 8, 'з': 9,
	'и': 1, 'й': 2, 'к': 3, 'л': 4, 'м': 5, 'н': 6, 'о': 7, 'п': 8, 'р': 9,
	'с': 1, 'т': 2, 'у': 3, 'ф': 4, 'х': 5, 'ц': 6, 'ч': 7, 'ш': 8, 'щ': 9,
	'ъ': 1, 'ы': 2, 'ь': 3, 'э': 4, 'ю': 5, 'я': 6,
}

// latinValues is the Pythagorean table: a=1 ... i=9, j=1 ... r=9, s=1 ... z=8.
var latinValues = func() map[rune]int {
	m := make(map[rune]int, 26)
	for i, r := 0, 'a'; r <= 'z'; i, r = i+1, r+1 {
		m[r] = i%9 + 1
	}
	return m
}()

// letterValue returns the value of a lowercase letter, 0 for letters outside both tables.
func letterValue(r rune) int {
	if v, ok := cyrillicValues[r]; ok {
		return v
	}
	return latinValues[r]
}
