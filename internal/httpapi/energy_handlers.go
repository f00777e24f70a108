package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"enerkpi.org/internal/energy"
)

func (a *API) listElectricity(w http.ResponseWriter, r *http.Request) {
	items, err := a.energy.ListElectricity(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if items == nil {
		items = []energy.ElectricityData{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) createElectricity(w http.ResponseWriter, r *http.Request) {
	var d energy.ElectricityData
	if err := decodeJSON(w, r, &d); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := a.energy.CreateElectricity(r.Context(), &d)
	if err != nil {
		handleEnergyError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) getElectricity(w http.ResponseWriter, r *http.Request) {
	d, err := a.energy.FindElectricity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleEnergyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) updateElectricity(w http.ResponseWriter, r *http.Request) {
	var d energy.ElectricityData
	if err := decodeJSON(w, r, &d); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d.ID = chi.URLParam(r, "id")
	updated, err := a.energy.UpdateElectricity(r.Context(), &d)
	if err != nil {
		handleEnergyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) deleteElectricity(w http.ResponseWriter, r *http.Request) {
	if err := a.energy.DeleteElectricity(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleEnergyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listWater(w http.ResponseWriter, r *http.Request) {
	items, err := a.energy.ListWater(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if items == nil {
		items = []energy.WaterData{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) createWater(w http.ResponseWriter, r *http.Request) {
	var d energy.WaterData
	if err := decodeJSON(w, r, &d); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := a.energy.CreateWater(r.Context(), &d)
	if err != nil {
		handleEnergyError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) getWater(w http.ResponseWriter, r *http.Request) {
	d, err := a.energy.FindWater(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleEnergyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *API) updateWater(w http.ResponseWriter, r *http.Request) {
	var d energy.WaterData
	if err := decodeJSON(w, r, &d); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	d.ID = chi.URLParam(r, "id")
	updated, err := a.energy.UpdateWater(r.Context(), &d)
	if err != nil {
		handleEnergyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) deleteWater(w http.ResponseWriter, r *http.Request) {
	if err := a.energy.DeleteWater(r.Context(), chi.URLParam(r, "id")); err != nil {
		handleEnergyError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleEnergyError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, energy.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "year must be 2000-2100 and month 1-12")
	case errors.Is(err, energy.ErrNotFound):
		writeError(w, http.StatusNotFound, "record not found")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
