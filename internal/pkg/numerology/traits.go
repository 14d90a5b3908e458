package numerology

// Energy is the yin/yang polarity of an arcane.
type Energy string

const (
	EnergyYin  Energy = "yin"
	EnergyYang Energy = "yang"
)

// Drive tells whether an arcane leans on fate or on will.
type Drive string

const (
	DriveFate Drive = "fate"
	DriveWill Drive = "will"
)

var yinArcana = map[int]bool{2: true, 3: true, 6: true, 12: true, 14: true, 15: true, 17: true, 18: true, 20: true, 21: true, 22: true}

var fateArcana = map[int]bool{1: true, 2: true, 5: true, 6: true, 9: true, 10: true, 13: true, 14: true, 15: true, 16: true, 20: true}

// arcanePercent positions each arcane on the 0..100 scale used by the report charts.
var arcanePercent = [ArcanaCount + 1]float64{
	0, 27, 22.5, 36, 99, 31.5, 18, 54, 58.5, 40.5, 81,
	67.5, 9, 90, 45, 72, 94.5, 63, 13.5, 85.5, 4.5, 49.5, 76.5,
}

func EnergyOf(arcane int) Energy {
	if yinArcana[Reduce(arcane)] {
		return EnergyYin
	}
	return EnergyYang
}

func DriveOf(arcane int) Drive {
	if fateArcana[Reduce(arcane)] {
		return DriveFate
	}
	return DriveWill
}

func Percent(arcane int) float64 {
	return arcanePercent[Reduce(arcane)]
}
