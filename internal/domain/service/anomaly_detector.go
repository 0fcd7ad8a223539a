package service

// AnomalyPoint - точка, отклонившаяся от скользящего среднего
type AnomalyPoint struct {
	Index         int
	Value         float64
	ZScore        float64
	ExpectedValue float64
}

// AnomalyDetector ищет выбросы по скользящему z-score (Domain Service)
type AnomalyDetector struct {
	maxWindow int
}

// NewAnomalyDetector создает детектор; maxWindow - верхняя граница окна (по умолчанию 20)
func NewAnomalyDetector(maxWindow int) *AnomalyDetector {
	if maxWindow <= 1 {
		maxWindow = 20
	}
	return &AnomalyDetector{maxWindow: maxWindow}
}

// WindowSize возвращает размер окна для n точек: min(maxWindow, n/4), но не меньше 2
func (d *AnomalyDetector) WindowSize(n int) int {
	w := n / 4
	if w > d.maxWindow {
		w = d.maxWindow
	}
	if w < 2 {
		w = 2
	}
	return w
}

// Detect сравнивает каждую точку с окном предыдущих значений.
// При нулевом stddev окна z-score считается равным 0.
func (d *AnomalyDetector) Detect(values []float64, sensitivity float64) []AnomalyPoint {
	window := d.WindowSize(len(values))
	if len(values) <= window {
		return nil
	}

	var anomalies []AnomalyPoint
	for i := window; i < len(values); i++ {
		w := values[i-window : i]
		mean := Mean(w)
		std := StdDev(w)

		var z float64
		if std > 0 {
			diff := values[i] - mean
			if diff < 0 {
				diff = -diff
			}
			z = diff / std
		}

		if z > sensitivity {
			anomalies = append(anomalies, AnomalyPoint{
				Index:         i,
				Value:         values[i],
				ZScore:        z,
				ExpectedValue: mean,
			})
		}
	}

	return anomalies
}
