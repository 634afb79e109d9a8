package flows

import "github.com/orderflow/orderflow/internal/engine"

// Build assembles the shared checkout topology for the given options.
//
// Every flow boots the catalog, restores any persisted position, browses and
// carts, then runs account resolution as either guest or sign-in before the
// cart is saved upstream. Flows with scheduling insert the fulfillment step
// between cart and resolution; flows with an organization step insert it
// between resolution and the cart save.
func Build(opts Options) (*engine.Definition, error) {
	b := engine.NewDefinition(opts.Name, StBooting)

	// checkoutTarget is where a finished cart review hands off.
	checkoutTarget := StGuest
	retryTarget := StCartView
	if opts.Scheduling {
		checkoutTarget = StSchedule
		retryTarget = StSchedule
	}

	// Boot: load the catalog, then restore the persisted position.
	b.State(StBooting, engine.AsPassthrough()).
		State(StLoadingCatalog).
		State(StRestoring, engine.AsPassthrough()).
		State(StFailure, engine.AsTerminal())

	b.On(StBooting, engine.Advance, engine.Transition{Target: StLoadingCatalog, Action: startCatalogLoad})
	b.On(StLoadingCatalog, engine.ActorDone(actorFetchCatalog), engine.Transition{Target: StRestoring, Action: storeCatalog}).
		On(StLoadingCatalog, engine.ActorFailed(actorFetchCatalog), engine.Transition{Target: StFailure, Action: failCatalog})

	b.On(StRestoring, engine.Advance, engine.Transition{Guard: "resumeLeaf == 'cartView'", Target: StCartView, Action: clearResume})
	if opts.Scheduling {
		b.On(StRestoring, engine.Advance, engine.Transition{Guard: "resumeLeaf == 'schedule'", Target: StSchedule, Action: clearResume})
	}
	b.On(StRestoring, engine.Advance, engine.Transition{Target: StBrowsing, Action: clearResume})

	// Browsing: category, item, customization and quantity leaves under one
	// composite that owns the cart mutations.
	b.State(StBrowsing, engine.WithInitial(StBrowseCategories)).
		State(StBrowseCategories, engine.WithParent(StBrowsing)).
		State(StBrowseItems, engine.WithParent(StBrowsing)).
		State(StBrowseDetail, engine.WithParent(StBrowsing)).
		State(StBrowseEditing, engine.WithParent(StBrowsing)).
		State(StBrowseQuantity, engine.WithParent(StBrowsing))

	b.On(StBrowseCategories, EvSelectCategory, engine.Transition{Target: StBrowseItems}).
		On(StBrowseItems, EvSelectItem, engine.Transition{Target: StBrowseDetail}).
		On(StBrowseItems, EvBack, engine.Transition{Target: StBrowseCategories}).
		On(StBrowseDetail, EvCustomizeItem, engine.Transition{Target: StBrowseEditing, Action: beginCustomize}).
		On(StBrowseDetail, EvBack, engine.Transition{Target: StBrowseItems}).
		On(StBrowseEditing, EvCustomizeItem, engine.Transition{Action: beginCustomize}).
		On(StBrowseEditing, EvSetItemQuantity, engine.Transition{Target: StBrowseQuantity, Action: setEditingQuantity}).
		On(StBrowseEditing, EvBack, engine.Transition{Target: StBrowseDetail, Action: discardEditing}).
		On(StBrowseQuantity, EvSetItemQuantity, engine.Transition{Action: setEditingQuantity}).
		On(StBrowseQuantity, EvBack, engine.Transition{Target: StBrowseEditing})

	b.On(StBrowsing, EvAddToCart, engine.Transition{Target: StBrowseCategories, Action: addToCart}).
		On(StBrowsing, EvRemoveFromCart, engine.Transition{Action: removeFromCart}).
		On(StBrowsing, EvSetQuantity, engine.Transition{Action: setCartQuantity}).
		On(StBrowsing, EvViewCart, engine.Transition{Target: StCartView})

	// Cart review.
	b.State(StCartView)
	b.On(StCartView, EvRemoveFromCart, engine.Transition{Action: removeFromCart}).
		On(StCartView, EvSetQuantity, engine.Transition{Action: setCartQuantity}).
		On(StCartView, EvBack, engine.Transition{Target: StBrowsing}).
		On(StCartView, EvCheckout, engine.Transition{Guard: "cartCount == 0", Action: rejectEmptyCart}).
		On(StCartView, EvCheckout, engine.Transition{Guard: "isVerified", Target: StDecide}).
		On(StCartView, EvCheckout, engine.Transition{Target: checkoutTarget})

	// Fulfillment scheduling.
	if opts.Scheduling {
		b.State(StSchedule)
		b.On(StSchedule, EvSelectLocation, engine.Transition{Action: selectLocation}).
			On(StSchedule, EvSetAddress, engine.Transition{Action: setAddress}).
			On(StSchedule, EvSelectDate, engine.Transition{Action: selectDate}).
			On(StSchedule, EvSelectTime, engine.Transition{Action: selectTime}).
			On(StSchedule, EvBack, engine.Transition{Target: StCartView}).
			On(StSchedule, EvSubmitSchedule, engine.Transition{Guard: "isVerified", Target: StDecide, Action: validateSchedule}).
			On(StSchedule, EvSubmitSchedule, engine.Transition{Target: StGuest, Action: validateSchedule})
	}

	// Guest resolution: collect contact info, resolve against the backend,
	// then route on the classification. Partial matches are confirmed by the
	// user before verification; misses create an account.
	b.State(StGuest, engine.WithInitial(StGuestContact)).
		State(StGuestContact, engine.WithParent(StGuest)).
		State(StGuestResolving, engine.WithParent(StGuest)).
		State(StGuestRoute, engine.WithParent(StGuest), engine.AsPassthrough()).
		State(StGuestSelecting, engine.WithParent(StGuest)).
		State(StGuestCreating, engine.WithParent(StGuest))

	guestOTP := graftOTP(b, otpConfig{
		parent:         StGuest,
		successTarget:  StDecide,
		selectTarget:   StGuestSelecting,
		createTarget:   StGuestCreating,
		fallbackTarget: StGuestContact,
	})

	b.On(StGuestContact, EvUpdateContactField, engine.Transition{Action: updateContactField}).
		On(StGuestContact, EvSubmitContact, engine.Transition{Target: StGuestResolving, Action: startResolution}).
		On(StGuestContact, EvBack, engine.Transition{Target: retryTarget})

	b.On(StGuestResolving, engine.ActorDone(actorCheckStatus), engine.Transition{Target: StGuestRoute, Action: recordResolution}).
		On(StGuestResolving, engine.ActorFailed(actorCheckStatus), engine.Transition{Target: StGuestContact, Action: failResolution})

	b.On(StGuestRoute, engine.Advance, engine.Transition{Guard: "resolution == 'EXACT_MATCH'", Target: guestOTP, Action: adoptResolvedMatch}).
		On(StGuestRoute, engine.Advance, engine.Transition{Guard: "resolution == 'PARTIAL_MATCH'", Target: StGuestSelecting}).
		On(StGuestRoute, engine.Advance, engine.Transition{Target: StGuestCreating, Action: startCreateAccount})

	b.On(StGuestSelecting, EvSelectAccount, engine.Transition{Action: selectCandidate}).
		On(StGuestSelecting, EvConfirmPartialMatch, engine.Transition{Guard: "selectedNew", Target: StGuestCreating, Action: startCreateAccount}).
		On(StGuestSelecting, EvConfirmPartialMatch, engine.Transition{Guard: "selectedAccount != ''", Target: guestOTP, Action: confirmPartialMatch}).
		On(StGuestSelecting, EvConfirmPartialMatch, engine.Transition{Action: selectCandidate}).
		On(StGuestSelecting, EvBack, engine.Transition{Target: StGuestContact})

	b.On(StGuestCreating, engine.ActorDone(actorCreateAccount), engine.Transition{Guard: "trustNew", Target: StDecide, Action: adoptCreatedAccount}).
		On(StGuestCreating, engine.ActorDone(actorCreateAccount), engine.Transition{Target: guestOTP, Action: adoptCreatedAccount}).
		On(StGuestCreating, engine.ActorFailed(actorCreateAccount), engine.Transition{Target: StGuestContact, Action: failCreateAccount})

	// Sign-in: one identifier, possession proven first, then candidate
	// routing. No account creation on this path.
	b.State(StLogin, engine.WithInitial(StLoginContact)).
		State(StLoginContact, engine.WithParent(StLogin)).
		State(StLoginResolving, engine.WithParent(StLogin)).
		State(StLoginRoute, engine.WithParent(StLogin), engine.AsPassthrough()).
		State(StLoginSelecting, engine.WithParent(StLogin))

	loginOTP := graftOTP(b, otpConfig{
		parent:         StLogin,
		successTarget:  StDecide,
		selectTarget:   StLoginSelecting,
		fallbackTarget: StLoginContact,
	})

	b.On(StLoginContact, EvUpdateContactField, engine.Transition{Action: updateContactField}).
		On(StLoginContact, EvSubmitContact, engine.Transition{Target: StLoginResolving, Action: startLoginResolution}).
		On(StLoginContact, EvBack, engine.Transition{Target: retryTarget})

	b.On(StLoginResolving, engine.ActorDone(actorCheckStatus), engine.Transition{Target: StLoginRoute, Action: recordResolution}).
		On(StLoginResolving, engine.ActorFailed(actorCheckStatus), engine.Transition{Target: StLoginContact, Action: failResolution})

	b.On(StLoginRoute, engine.Advance, engine.Transition{Guard: "resolution == 'NO_MATCH'", Target: StLoginContact, Action: noSuchAccount}).
		On(StLoginRoute, engine.Advance, engine.Transition{Guard: "resolution == 'EXACT_MATCH'", Target: loginOTP, Action: adoptResolvedMatch}).
		On(StLoginRoute, engine.Advance, engine.Transition{Target: loginOTP})

	b.On(StLoginSelecting, EvSelectAccount, engine.Transition{Target: StDecide, Action: adoptVerifiedSelection}).
		On(StLoginSelecting, EvBack, engine.Transition{Target: StLoginContact})

	b.On(StLogin, EvContinueAsGuest, engine.Transition{Target: StGuest})

	// Organization step, then cart save and confirmation. An empty cart
	// short-circuits to the account view before any org requirement: there is
	// nothing to check out, so nothing to gate.
	b.State(StDecide, engine.AsPassthrough()).
		State(StSavingCart).
		State(StConfirmation).
		State(StAccountView)

	b.On(StDecide, engine.Advance, engine.Transition{Guard: "cartCount == 0", Target: StAccountView})

	if opts.OrgStep {
		b.State(StOrgDetails).
			State(StCreatingOrg).
			State(StUpdatingType)

		b.On(StDecide, engine.Advance, engine.Transition{Guard: "orgDataMissing", Target: StOrgDetails})

		b.On(StOrgDetails, EvUpdateContactField, engine.Transition{Action: updateContactField}).
			On(StOrgDetails, EvSubmitOrganization, engine.Transition{
				Guard: "accountType == 'organization' && organizationId == ''", Target: StCreatingOrg, Action: submitOrgCreate,
			}).
			On(StOrgDetails, EvSubmitOrganization, engine.Transition{Target: StUpdatingType, Action: submitOrgType})

		b.On(StCreatingOrg, engine.ActorDone(actorCreateOrg), engine.Transition{Target: StUpdatingType, Action: recordOrganization}).
			On(StCreatingOrg, engine.ActorFailed(actorCreateOrg), engine.Transition{Target: StOrgDetails, Action: failOrganization})

		b.On(StUpdatingType, engine.ActorDone(actorUpdateType), engine.Transition{Target: StDecide}).
			On(StUpdatingType, engine.ActorFailed(actorUpdateType), engine.Transition{Target: StOrgDetails, Action: failOrganization})
	}

	b.On(StDecide, engine.Advance, engine.Transition{Target: StSavingCart, Action: startSaveCart})

	b.On(StSavingCart, engine.ActorDone(actorSaveCart), engine.Transition{Target: StConfirmation}).
		On(StSavingCart, engine.ActorFailed(actorSaveCart), engine.Transition{Target: retryTarget, Action: failSaveCart})

	b.On(StAccountView, EvBack, engine.Transition{Target: StBrowsing}).
		On(StAccountView, EvViewCart, engine.Transition{Target: StCartView})

	// Globals: ambient overlay toggles, fulfillment type switching, reset,
	// sign-in entry and account access work from any non-terminal state that
	// does not claim the event itself.
	b.Global(EvOpenCartDrawer, engine.Transition{Action: openCartDrawer}).
		Global(EvCloseCartDrawer, engine.Transition{Action: closeCartDrawer}).
		Global(EvSelectFulfillmentType, engine.Transition{Action: setFulfillmentType}).
		Global(EvReset, engine.Transition{Target: StBrowsing, Action: resetSession}).
		Global(EvLogout, engine.Transition{Target: StBrowsing, Action: logout}).
		Global(EvLogin, engine.Transition{Guard: "isVerified", Action: alreadySignedIn}).
		Global(EvLogin, engine.Transition{Target: StLogin}).
		Global(EvViewAccount, engine.Transition{Guard: "isAuthenticated", Target: StAccountView}).
		Global(EvViewAccount, engine.Transition{Action: requireSignIn})

	return b.Build()
}
