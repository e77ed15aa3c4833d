package scheduler

// Zikr is one remembrance phrase shown in the remembrance widget.
type Zikr struct {
	ID              string `json:"id"`
	Arabic          string `json:"arabic"`
	Transliteration string `json:"transliteration"`
	Translation     string `json:"translation"`
}

// DefaultAzkar is the fixed content set the remembrance widget rotates
// through.
var DefaultAzkar = []Zikr{
	{ID: "subhanallah", Arabic: "سُبْحَانَ اللَّهِ", Transliteration: "Subhan Allah", Translation: "Glory be to Allah"},
	{ID: "alhamdulillah", Arabic: "الْحَمْدُ لِلَّهِ", Transliteration: "Alhamdulillah", Translation: "All praise is due to Allah"},
	{ID: "allahuakbar", Arabic: "اللَّهُ أَكْبَرُ", Transliteration: "Allahu Akbar", Translation: "Allah is the Greatest"},
	{ID: "tahlil", Arabic: "لَا إِلَٰهَ إِلَّا اللَّهُ", Transliteration: "La ilaha illa Allah", Translation: "There is no god but Allah"},
	{ID: "istighfar", Arabic: "أَسْتَغْفِرُ اللَّهَ", Transliteration: "Astaghfirullah", Translation: "I seek forgiveness from Allah"},
	{ID: "hawqala", Arabic: "لَا حَوْلَ وَلَا قُوَّةَ إِلَّا بِاللَّهِ", Transliteration: "La hawla wa la quwwata illa billah", Translation: "There is no might nor power except with Allah"},
	{ID: "subhanallahi-wa-bihamdihi", Arabic: "سُبْحَانَ اللَّهِ وَبِحَمْدِهِ", Transliteration: "Subhan Allahi wa bihamdihi", Translation: "Glory be to Allah and praise Him"},
	{ID: "salawat", Arabic: "اللَّهُمَّ صَلِّ عَلَى مُحَمَّدٍ", Transliteration: "Allahumma salli ala Muhammad", Translation: "O Allah, send blessings upon Muhammad"},
}
