package alerts

// Пороги каталога. Проценты изменения - в процентах, доли и rate - в долях,
// shares - в процентах (как их возвращает derived.Shares).
const (
	RevenueDropHighPct   = -10.0
	RevenueDropMediumPct = -5.0

	PaymentMethodDependencySharePct = 70.0

	AverageTicketDropPct = -10.0

	DelayRateHigh   = 0.25
	DelayRateMedium = 0.15

	PrepTimeIncreasePct = 20.0

	WorkloadImbalanceSharePct = 40.0
	WorkloadMinEntities       = 2

	UnattributedMediumRate = 0.05

	RevenueConcentrationRatioMax = 20.0
	RevenueConcentrationMinItems = 5

	ProblematicItemsSharePct = 30.0

	OrderVolumeDropHighPct   = -20.0
	OrderVolumeDropMediumPct = -10.0

	CancellationRateMedium = 0.10

	PeakOverloadFactor = 2.0
)
