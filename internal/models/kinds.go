package models

import (
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	recordKinds map[string]RecordKind
	labelCaser  = cases.Title(language.Spanish)
)

// LookupKind returns the record kind with the given name
func LookupKind(name string) (RecordKind, bool) {
	k, ok := recordKinds[name]
	return k, ok
}

// RecordKinds returns all known record kinds ordered by name
func RecordKinds() []RecordKind {
	ret := make([]RecordKind, 0, len(recordKinds))
	for _, k := range recordKinds {
		ret = append(ret, k)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].Name < ret[j].Name })
	return ret
}

// FieldLabel builds the human readable label for a field name ("fecha_vencimiento" -> "Fecha Vencimiento")
func FieldLabel(name string) string {
	return labelCaser.String(strings.Replace(name, "_", " ", -1))
}

// Helpers for the field tables below
func req(name string) FieldSpec     { return FieldSpec{Name: name, Required: true, MaxLen: 255} }
func opt(name string) FieldSpec     { return FieldSpec{Name: name, MaxLen: 255} }
func date(name string) FieldSpec    { return FieldSpec{Name: name, Date: true} }
func reqDate(name string) FieldSpec { return FieldSpec{Name: name, Date: true, Required: true} }

func registerKind(k RecordKind) {
	for i := range k.Fields {
		k.Fields[i].Label = FieldLabel(k.Fields[i].Name)
	}
	recordKinds[k.Name] = k
}

func init() {
	recordKinds = make(map[string]RecordKind)
	registerKind(RecordKind{
		Name:  KindMedications,
		Label: "Medicamentos",
		Fields: []FieldSpec{
			req("principio_activo"),
			req("forma_farmaceutica"),
			opt("concentracion"),
			req("lote"),
			reqDate("fecha_vencimiento"),
			opt("presentacion_comercial"),
			opt("unidad_medida"),
			req("registro_sanitario"),
		},
	})
	registerKind(RecordKind{
		Name:  KindMedicalDevices,
		Label: "Dispositivos médicos",
		Fields: []FieldSpec{
			req("nombre"),
			opt("marca"),
			opt("serie"),
			opt("presentacion_comercial"),
			req("registro_sanitario"),
			opt("clasificacion_riesgo"),
			opt("vida_util"),
			opt("lote"),
			date("fecha_vencimiento"),
		},
	})
	registerKind(RecordKind{
		Name:  KindBiomedicalEquipment,
		Label: "Equipos biomédicos",
		Fields: []FieldSpec{
			req("nombre"),
			opt("marca"),
			opt("modelo"),
			req("serie"),
			opt("ubicacion"),
			opt("registro_invima"),
			opt("clasificacion_riesgo"),
			date("fecha_adquisicion"),
		},
	})
	registerKind(RecordKind{
		Name:  KindReagents,
		Label: "Reactivos de vigilancia",
		Fields: []FieldSpec{
			req("nombre"),
			opt("marca"),
			opt("presentacion_comercial"),
			req("registro_sanitario"),
			opt("clasificacion_riesgo"),
			opt("vida_util"),
			date("fecha_vencimiento"),
			req("lote"),
		},
	})
	registerKind(RecordKind{
		Name:  KindInventory,
		Label: "Inventarios",
		Fields: []FieldSpec{
			req("codigo"),
			req("nombre"),
			{Name: "cantidad", Required: true, Numeric: true},
			opt("ubicacion"),
			opt("sede_id"),
			{Name: "observaciones", MaxLen: 1024},
		},
		ViewPermission:   PermViewInventory,
		CreatePermission: PermCreateInventory,
	})
	registerKind(RecordKind{
		Name:  KindMaintenance,
		Label: "Mantenimientos",
		Fields: []FieldSpec{
			req("titulo"),
			opt("codigo"),
			opt("modelo"),
			req("dependencia"),
			req("sede_id"),
			opt("nombre_receptor"),
			// Data URL of an uploaded picture
			{Name: "imagen"},
			{Name: "descripcion", MaxLen: 2048},
			opt("estado"),
		},
		ViewPermission:   PermViewMaintenance,
		CreatePermission: PermCreateMaintenance,
	})
}
