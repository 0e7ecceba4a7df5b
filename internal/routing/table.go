package routing

import (
	"github.com/derWhity/medstock/internal/access"
	"github.com/derWhity/medstock/internal/models"
)

// Paths of the built-in route table
const (
	PathLogin          = access.LoginPath
	PathNotFound       = access.NotFoundPath
	PathNotAvailable   = access.NotAvailablePath
	PathDashboard      = "/dashboard"
	PathProfile        = PathDashboard + "/perfil"
	PathAdminDashboard = PathDashboard + "/admin"

	PathAdminUsers          = PathAdminDashboard + "/usuarios"
	PathAdminCreateUser     = PathAdminDashboard + "/crear_usuario"
	PathAdminRoles          = PathAdminDashboard + "/roles"
	PathAdminCreatePerm     = PathAdminDashboard + "/crear_permiso"
	PathAdminAssignPerm     = PathAdminDashboard + "/asignar_permiso"
	PathAdminFormBuilder    = PathAdminDashboard + "/crear_formulario"
	PathLegacyUserList      = PathDashboard + "/view_usuarios"
	PathLegacyUserForm      = PathDashboard + "/form_usuarios"
	PathCreateInventory     = PathDashboard + "/crear_inventario"
	PathInventory           = PathDashboard + "/inventarios"
	PathCreateMaintenance   = PathDashboard + "/crear_mantenimiento"
	PathMaintenance         = PathDashboard + "/mantenimiento"
	PathMaintenanceDetail   = PathMaintenance + "/detalles/{id:[0-9]+}"
	PathFormMedication      = PathDashboard + "/form_medicamento"
	PathFormMedicalDevice   = PathDashboard + "/form_dispositivo_medicos"
	PathFormEquipment       = PathDashboard + "/form_equipo_biomedicos"
	PathFormReagent         = PathDashboard + "/form_reactivo_vigilancia"
	PathFormInventory       = PathDashboard + "/form_inventario"
	PathViewMedications     = PathDashboard + "/view_medicamentos"
	PathViewMedicalDevices  = PathDashboard + "/view_dispositivos_medicos"
	PathViewEquipment       = PathDashboard + "/view_equipos_biomedicos"
	PathViewReagents        = PathDashboard + "/view_reactivos_vigilancia"
	PathViewInventory       = PathDashboard + "/view_inventarios"
)

// Menu groups
const (
	GroupHome    = "inicio"
	GroupUsers   = "usuarios"
	GroupForms   = "formularios"
	GroupRecords = "registros"
	GroupProfile = "perfil"
)

func menu(group, label string) *MenuEntry {
	return &MenuEntry{Group: group, Label: label}
}

// kindForm builds the create route of a record kind, guarded by the kind's create permission
func kindForm(name, path, kind, label string) Route {
	k, _ := models.LookupKind(kind)
	return Route{
		Name:        name,
		Path:        path,
		Page:        PageRecordForm,
		Kind:        kind,
		Requirement: access.Permission(k.CreatePermission),
		Menu:        menu(GroupForms, label),
	}
}

// kindList builds the list route of a record kind, guarded by the kind's view permission
func kindList(name, path, kind, label string) Route {
	k, _ := models.LookupKind(kind)
	return Route{
		Name:        name,
		Path:        path,
		Page:        PageRecordList,
		Kind:        kind,
		Requirement: access.Permission(k.ViewPermission),
		Menu:        menu(GroupRecords, label),
	}
}

// DefaultRoutes returns the built-in route table
func DefaultRoutes() []Route {
	routes := []Route{
		{Name: "login", Path: PathLogin, Page: PageLogin, Requirement: access.GuestAccess()},
		{Name: "notFound", Path: PathNotFound, Page: PageNotFound, Requirement: access.PublicAccess()},
		{Name: "notAvailable", Path: PathNotAvailable, Page: PageNotAvailable, Requirement: access.LoggedIn()},
		{
			Name: "dashboard", Path: PathDashboard, Page: PageDashboard, Requirement: access.LoggedIn(),
			Menu: menu(GroupHome, "Inicio"),
		},
		{
			Name: "profile", Path: PathProfile, Page: PageProfile, Requirement: access.LoggedIn(),
			Menu: menu(GroupProfile, "Mi perfil"),
		},

		// Administration
		{
			Name: "adminDashboard", Path: PathAdminDashboard, Page: PageAdminDashboard, Requirement: access.Admin(),
			Menu: menu(GroupHome, "Inicio administrador"),
		},
		{
			Name: "adminUsers", Path: PathAdminUsers, Page: PageUserList, Requirement: access.Admin(),
			Menu: menu(GroupUsers, "Ver usuarios"),
		},
		{
			Name: "adminCreateUser", Path: PathAdminCreateUser, Page: PageUserForm, Requirement: access.Admin(),
			Menu: menu(GroupUsers, "Crear usuario"),
		},
		{
			Name: "adminRoles", Path: PathAdminRoles, Page: PageRoleList, Requirement: access.Admin(),
			Menu: menu(GroupUsers, "Roles"),
		},
		{
			Name: "adminCreatePermission", Path: PathAdminCreatePerm, Page: PagePermissionForm,
			Requirement: access.Admin(), Menu: menu(GroupUsers, "Crear permiso"),
		},
		{
			Name: "adminAssignPermission", Path: PathAdminAssignPerm, Page: PagePermissionAssign,
			Requirement: access.Admin(), Menu: menu(GroupUsers, "Asignar permisos"),
		},
		{
			Name: "adminFormBuilder", Path: PathAdminFormBuilder, Page: PageFormBuilder,
			Requirement: access.Admin().AsPending(), Menu: menu(GroupForms, "Crear formulario"),
		},
		// Older paths of the user pages, still linked from bookmarks
		{Name: "legacyUserList", Path: PathLegacyUserList, Page: PageUserList, Requirement: access.Admin()},
		{Name: "legacyUserForm", Path: PathLegacyUserForm, Page: PageUserForm, Requirement: access.Admin()},

		// Inventory and maintenance
		kindForm("createInventory", PathCreateInventory, models.KindInventory, "Registrar inventario"),
		kindList("inventory", PathInventory, models.KindInventory, "Inventarios"),
		kindForm("createMaintenance", PathCreateMaintenance, models.KindMaintenance, "Registrar mantenimiento"),
		kindList("maintenance", PathMaintenance, models.KindMaintenance, "Mantenimientos"),
		{
			Name: "maintenanceDetail", Path: PathMaintenanceDetail, Page: PageRecordDetail,
			Kind: models.KindMaintenance, Requirement: access.Permission(models.PermViewMaintenance),
		},

		// Per-entity forms and lists
		kindForm("formMedication", PathFormMedication, models.KindMedications, "Medicamento"),
		kindForm("formMedicalDevice", PathFormMedicalDevice, models.KindMedicalDevices, "Dispositivo médico"),
		kindForm("formEquipment", PathFormEquipment, models.KindBiomedicalEquipment, "Equipo biomédico"),
		kindForm("formReagent", PathFormReagent, models.KindReagents, "Reactivo de vigilancia"),
		kindList("viewMedications", PathViewMedications, models.KindMedications, "Medicamentos"),
		kindList("viewMedicalDevices", PathViewMedicalDevices, models.KindMedicalDevices, "Dispositivos médicos"),
		kindList("viewEquipment", PathViewEquipment, models.KindBiomedicalEquipment, "Equipos biomédicos"),
		kindList("viewReagents", PathViewReagents, models.KindReagents, "Reactivos de vigilancia"),
	}
	// The older inventory paths do not show up in the menu
	formInv := kindForm("formInventory", PathFormInventory, models.KindInventory, "")
	formInv.Menu = nil
	viewInv := kindList("viewInventory", PathViewInventory, models.KindInventory, "")
	viewInv.Menu = nil
	return append(routes, formInv, viewInv)
}

// NewDefaultTable builds the built-in route table using the default access policy
func NewDefaultTable() *Table {
	return MustNewTable(access.DefaultPolicy(), DefaultRoutes())
}
