// Package lwin interpreta los códigos LWIN que identifican un vino y su configuración de caja.
//
// Un LWIN18 se compone de LWIN7 (productor/vino) + añada (4) + botellas por caja (2) +
// tamaño de botella en centilitros (5). Los prefijos de 7 y 11 caracteres identifican el vino
// (y la añada) sin importar el empaque y se usan para el emparejamiento por prefijo.
package lwin

import (
	"fmt"
	"strconv"
)

// Longitudes válidas de un código LWIN.
const (
	Len7  = 7
	Len11 = 11
	Len18 = 18
)

// Identity es un LWIN ya validado. Los campos vacíos indican un código parcial.
type Identity struct {
	Code       string
	Wine       string // LWIN7
	Vintage    string
	CaseSize   int
	BottleSize int // centilitros
}

// Parse valida un código LWIN de 7, 11 o 18 dígitos.
func Parse(code string) (Identity, error) {
	switch len(code) {
	case Len7, Len11, Len18:
	default:
		return Identity{}, fmt.Errorf("lwin: longitud %d inválida para %q", len(code), code)
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return Identity{}, fmt.Errorf("lwin: carácter no numérico en %q", code)
		}
	}
	id := Identity{Code: code, Wine: code[:Len7]}
	if len(code) >= Len11 {
		id.Vintage = code[Len7:Len11]
	}
	if len(code) == Len18 {
		id.CaseSize, _ = strconv.Atoi(code[11:13])
		id.BottleSize, _ = strconv.Atoi(code[13:18])
	}
	return id, nil
}

// IsPartial indica si el código solo identifica el vino (7) o vino+añada (11).
func (id Identity) IsPartial() bool {
	return len(id.Code) != Len18
}

// Prefix devuelve los primeros n caracteres del código (o el código completo si es más corto).
func (id Identity) Prefix(n int) string {
	if n >= len(id.Code) {
		return id.Code
	}
	return id.Code[:n]
}

// IsPartial es el atajo sin parseo completo; un código inválido no es parcial.
func IsPartial(code string) bool {
	id, err := Parse(code)
	return err == nil && id.IsPartial()
}

// HasPrefix reporta si full pertenece a la familia identificada por el código parcial.
func HasPrefix(full, partial string) bool {
	return len(full) >= len(partial) && full[:len(partial)] == partial
}
