package devices

import (
	"context"

	"github.com/APS-USAXS/ipython-usaxs/pv"
)

// DualPf4FilterBox is the XIA PF4 dual filter box support
type DualPf4FilterBox struct {
	Name string

	FPosA, FPosB       pv.Float
	BankA, BankB       pv.String
	BitFlagA, BitFlagB pv.Int

	TransmissionA, TransmissionB, TransmissionAB pv.Float
	InverseA, InverseB, InverseAB                pv.Float

	ThicknessAlMM, ThicknessTiMM, ThicknessGlassMM pv.Float

	EnergyLocal, EnergyMono pv.Float
	Mode                    pv.Int
}

// NewDualPf4FilterBox binds a filter box under prefix, e.g. 9idcRIO:pf4:
func NewDualPf4FilterBox(net pv.Network, name, prefix string) *DualPf4FilterBox {
	f := func(s string) pv.Float { return pv.NewFloat(net, prefix+s) }
	return &DualPf4FilterBox{
		Name:             name,
		FPosA:            f("fPosA"),
		FPosB:            f("fPosB"),
		BankA:            pv.NewString(net, prefix+"bankA"),
		BankB:            pv.NewString(net, prefix+"bankB"),
		BitFlagA:         pv.NewInt(net, prefix+"bitFlagA"),
		BitFlagB:         pv.NewInt(net, prefix+"bitFlagB"),
		TransmissionA:    f("trans_A"),
		TransmissionB:    f("trans_B"),
		TransmissionAB:   f("trans_AB"),
		InverseA:         f("invTrans_A"),
		InverseB:         f("invTrans_B"),
		InverseAB:        f("invTrans_AB"),
		ThicknessAlMM:    f("filterAl"),
		ThicknessTiMM:    f("filterTi"),
		ThicknessGlassMM: f("filterGlass"),
		EnergyLocal:      f("E:local"),
		EnergyMono:       f("displayEnergy"),
		Mode:             pv.NewInt(net, prefix+"useMono"),
	}
}

// SetFilters writes the Al and Ti filter selections, bank A holds Al
func (b *DualPf4FilterBox) SetFilters(ctx context.Context, al, ti int) error {
	if err := b.FPosA.Put(ctx, float64(al)); err != nil {
		return err
	}
	return b.FPosB.Put(ctx, float64(ti))
}

// Signals implements Device
func (b *DualPf4FilterBox) Signals() []NamedSignal {
	return []NamedSignal{
		{b.Name + "_fPosA", b.FPosA},
		{b.Name + "_fPosB", b.FPosB},
		{b.Name + "_transmission_ab", b.TransmissionAB},
		{b.Name + "_thickness_Al_mm", b.ThicknessAlMM},
		{b.Name + "_thickness_Ti_mm", b.ThicknessTiMM},
	}
}
